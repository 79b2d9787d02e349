package strategy

import (
	"fmt"
	"math"

	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// Simple is the default strategy (spec.md §4.4.1): CPU request at a single
// percentile, no CPU limit, memory sized off the observed max (or the
// OOMKilledMemory override when any pod OOM'd in the window).
type Simple struct {
	// Percentile is the CPU percentile used for the request (default 95).
	Percentile float64
	// MemoryBufferPercentage pads the plain-max memory formula (default 15).
	MemoryBufferPercentage float64
	// OOMMemoryBufferPercentage pads the OOM-override formula (default 25).
	OOMMemoryBufferPercentage float64
}

// NewSimple returns a Simple strategy with spec.md §4.4 defaults.
func NewSimple() *Simple {
	return &Simple{Percentile: 95, MemoryBufferPercentage: 15, OOMMemoryBufferPercentage: 25}
}

func (s *Simple) Name() string { return "simple" }

func (s *Simple) RequiredMetricKinds() []dialect.Kind {
	return []dialect.Kind{dialect.PercentileCPU, dialect.CPUPoints, dialect.MaxMemory, dialect.MemoryPoints, dialect.OOMKilledMemory}
}

func (s *Simple) RequiredPercentiles() []float64 { return []float64{s.Percentile} }

func (s *Simple) Recommend(bundle *metricsvc.Bundle, ctx Context) Result {
	return recommendSimple(bundle, ctx, cpuPercentileSpec{request: s.Percentile}, s.MemoryBufferPercentage, s.OOMMemoryBufferPercentage)
}

// cpuPercentileSpec names which percentile(s) a Simple-family variant reads
// for the CPU request, and optionally the CPU limit (SimpleLimit only).
type cpuPercentileSpec struct {
	request float64
	limit   *float64
}

// recommendSimple holds the formula shared by Simple and SimpleLimit: only
// the CPU percentile selection differs between the two variants.
func recommendSimple(bundle *metricsvc.Bundle, ctx Context, cpu cpuPercentileSpec, memBufferPct, oomBufferPct float64) Result {
	r := newResult(ctx.ContainerName)

	if bundle.CPUPointCount() < ctx.PointsRequired {
		r.States["cpu"] = StateUndefined
		r.Info["cpu"] = fmt.Sprintf("not enough data: %d/%d samples", bundle.CPUPointCount(), ctx.PointsRequired)
	} else if hpaIneligible(ctx, ctx.HPA != nil && ctx.HPA.TargetsCPU) {
		r.States["cpu"] = StateIneligible
		r.Info["cpu"] = fmt.Sprintf("ineligible: HPA %q targets cpu and allow_hpa=false", ctx.HPA.Name)
	} else {
		reqSeries := bundle.PercentileSeries(cpu.request)
		reqVal, ok := maxScalarPerPod(reqSeries)
		if !ok {
			r.States["cpu"] = StateUndefined
			r.Info["cpu"] = "no percentile CPU series returned"
		} else {
			millis := int64(reqVal * 1000)
			clamped, wasClamped := clampInt64(millis, ctx.CPUMinMillicores)
			cpuReq := clamped
			r.Recommendation.CPURequestMillicores = &cpuReq
			if wasClamped {
				r.States["cpu"] = StateClamped
				r.Info["cpu"] = fmt.Sprintf("clamped to cpu_min (%dm)", ctx.CPUMinMillicores)
			} else {
				r.States["cpu"] = StateOK
				r.Info["cpu"] = fmt.Sprintf("p%.0f over history window", cpu.request)
			}

			if cpu.limit != nil {
				limSeries := bundle.PercentileSeries(*cpu.limit)
				if limVal, ok := maxScalarPerPod(limSeries); ok {
					limMillis := int64(limVal * 1000)
					r.Recommendation.CPULimitMillicores = &limMillis
				}
			}
		}
	}

	if bundle.MemoryPointCount() < ctx.PointsRequired {
		r.States["memory"] = StateUndefined
		r.Info["memory"] = fmt.Sprintf("not enough data: %d/%d samples", bundle.MemoryPointCount(), ctx.PointsRequired)
		return r
	}
	if hpaIneligible(ctx, ctx.HPA != nil && ctx.HPA.TargetsMemory) {
		r.States["memory"] = StateIneligible
		r.Info["memory"] = fmt.Sprintf("ineligible: HPA %q targets memory and allow_hpa=false", ctx.HPA.Name)
		return r
	}

	memBytes, memInfo, ok := memoryRecommendation(bundle, ctx, memBufferPct, oomBufferPct)
	if !ok {
		r.States["memory"] = StateUndefined
		r.Info["memory"] = "no memory series returned"
		return r
	}
	clamped, wasClamped := clampInt64(memBytes, ctx.MemMinBytes)
	r.Recommendation.MemRequestBytes = &clamped
	r.Recommendation.MemLimitBytes = &clamped
	if wasClamped {
		r.States["memory"] = StateClamped
		r.Info["memory"] = fmt.Sprintf("clamped to mem_min: %s", memInfo)
	} else {
		r.States["memory"] = StateOK
		r.Info["memory"] = memInfo
	}
	return r
}

// memoryRecommendation implements the plain-max-with-buffer formula, or the
// OOMKilledMemory override when any pod OOM'd during the window (spec.md
// §4.4 and the "OOM override" testable property).
func memoryRecommendation(bundle *metricsvc.Bundle, ctx Context, bufferPct, oomBufferPct float64) (int64, string, bool) {
	if ctx.UseOOMKillData {
		if oomMax, ok := maxOOMKilledMemory(bundle); ok && oomMax > 0 {
			bytes := int64(math.Round(oomMax * (1 + oomBufferPct/100)))
			return bytes, fmt.Sprintf("OOMKilledMemory override: max=%0.fB + %.0f%% buffer", oomMax, oomBufferPct), true
		}
	}

	maxMem, ok := maxScalarPerPod(bundle.Series[dialect.MaxMemory])
	if !ok {
		return 0, "", false
	}
	bytes := int64(math.Round(maxMem * (1 + bufferPct/100)))
	return bytes, fmt.Sprintf("max over history window + %.0f%% buffer", bufferPct), true
}

func maxOOMKilledMemory(bundle *metricsvc.Bundle) (float64, bool) {
	series := bundle.Series[dialect.OOMKilledMemory]
	if len(series) == 0 {
		return 0, false
	}
	return maxScalarPerPod(series)
}
