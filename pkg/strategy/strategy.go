// Package strategy turns a container's metric bundle into a resource
// recommendation (C4 in the component design). A Strategy is pure: given
// identical inputs it returns identical outputs, per spec.md §4.4.
package strategy

import (
	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/discovery"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// State is one of the four row states a recommended resource can carry in
// the final report.
type State string

const (
	StateOK         State = "ok"
	StateClamped    State = "clamped"
	StateUndefined  State = "undefined"
	StateIneligible State = "ineligible"
)

// Context carries everything a Strategy needs besides the metric bundle
// itself: the container's current allocations, discovery-time context, and
// the configured thresholds (spec.md §4.4 "Context").
type Context struct {
	ContainerName     string
	Current           discovery.ResourceAllocations
	HPA               *discovery.HPADescriptor
	AllowHPA          bool
	DiscoveryWarnings []string

	CPUMinMillicores int64
	MemMinBytes      int64
	PointsRequired   int
	UseOOMKillData   bool
	Window           dialect.Window
}

// Result is one container slot's recommendation. A nil field in
// Recommendation means that resource is undefined; States/Info are keyed by
// "cpu" and "memory".
type Result struct {
	Container      string
	Recommendation discovery.ResourceAllocations
	States         map[string]State
	Info           map[string]string
}

func newResult(container string) Result {
	return Result{Container: container, States: make(map[string]State), Info: make(map[string]string)}
}

// Strategy is the pluggable policy interface from spec.md §9 "Strategy
// polymorphism": RequiredMetricKinds/RequiredPercentiles tell the Runner
// what to fetch; Recommend turns the fetched Bundle into a Result.
type Strategy interface {
	Name() string
	RequiredMetricKinds() []dialect.Kind
	RequiredPercentiles() []float64
	Recommend(bundle *metricsvc.Bundle, ctx Context) Result
}

// hpaIneligible reports whether allow_hpa=false and the HPA targets the
// given resource, per spec.md §4.4 and the HPA-policy testable property.
func hpaIneligible(ctx Context, targetsResource bool) bool {
	return ctx.HPA != nil && !ctx.AllowHPA && targetsResource
}

func clampInt64(v, min int64) (int64, bool) {
	if v < min {
		return min, true
	}
	return v, false
}
