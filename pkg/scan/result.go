// Package scan implements the bounded-concurrency pipeline that ties
// discovery, metric acquisition, and strategy together (C5 in the
// component design): dispatch discovery -> metric acquisition -> strategy
// -> result aggregation under concurrency limits.
package scan

import (
	"github.com/costlens/rightsizer/pkg/discovery"
	"github.com/costlens/rightsizer/pkg/strategy"
)

// Result is one container slot's ScanResult: the workload identity tuple
// plus the Strategy's recommendation and free-form info, per spec.md §3.
type Result struct {
	ScanID    string
	Cluster   string
	Namespace string
	Kind      string
	Workload  string
	Container string

	Recommendation discovery.ResourceAllocations
	States         map[string]strategy.State
	Info           map[string]string
	Warnings       []string
}

func undefinedResult(scanID string, w discovery.Workload, container, reason string) Result {
	return Result{
		ScanID:    scanID,
		Cluster:   w.Cluster,
		Namespace: w.Namespace,
		Kind:      w.Kind.String(),
		Workload:  w.Name,
		Container: container,
		States:    map[string]strategy.State{"cpu": strategy.StateUndefined, "memory": strategy.StateUndefined},
		Info:      map[string]string{"cpu": reason, "memory": reason},
		Warnings:  w.Warnings,
	}
}

func fromStrategyResult(scanID string, w discovery.Workload, sr strategy.Result) Result {
	return Result{
		ScanID:         scanID,
		Cluster:        w.Cluster,
		Namespace:      w.Namespace,
		Kind:           w.Kind.String(),
		Workload:       w.Name,
		Container:      sr.Container,
		Recommendation: sr.Recommendation,
		States:         sr.States,
		Info:           sr.Info,
		Warnings:       w.Warnings,
	}
}
