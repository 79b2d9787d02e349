package strategy

import (
	"context"
	"fmt"

	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// clamp bounds for AI-Assisted output, per spec.md §4.4.3.
const (
	aiMinCPUCores    = 0.01
	aiMaxCPUCores    = 16
	aiMinMemoryBytes = 100 * 1024 * 1024
	aiMaxMemoryBytes = 64 * 1024 * 1024 * 1024
)

// Advice is the structured reply an LLMClient returns for one container
// slot, mirroring the JSON object shape from spec.md §4.4.3.
type Advice struct {
	CPURequestCores float64
	CPULimitCores   *float64
	MemRequestBytes int64
	MemLimitBytes   int64
	ConfidencePct   int
	Reasoning       string
}

// LLMClient is the second injectable interface spec.md §9 calls for: the
// AI-Assisted strategy's prompt text and HTTP transport are out of scope,
// but the core depends on this seam so tests can stub it.
type LLMClient interface {
	Recommend(ctx context.Context, prompt string) (*Advice, error)
}

// Stats summarizes one resource's distribution over the history window, the
// feature set composed into the AI-Assisted prompt (spec.md §4.4.3).
type Stats struct {
	P50, P75, P90, P95, P99 float64
	Max, Mean, StdDev       float64
	TrendSlopePerHour       float64
	SpikeCount              int
}

// AIAssisted asks an external LLM for a recommendation. The Simple formula
// is computed alongside as a baseline only for the deviation check; it is
// not part of the prompt and is not used as a fallback when the LLM fails.
type AIAssisted struct {
	Client                    LLMClient
	ReferencePercentile       float64
	MemoryBufferPercentage    float64
	OOMMemoryBufferPercentage float64
	// DeviationWarnPct is the percentage (e.g. 50 for 50%) the AI's value
	// may differ from the Simple baseline before the result is flagged
	// StateClamped (spec.md §4.4.3, rsconfig.Config.AIDeviationWarnPct).
	DeviationWarnPct float64
}

// NewAIAssisted returns an AIAssisted strategy bound to the given client.
func NewAIAssisted(client LLMClient) *AIAssisted {
	return &AIAssisted{Client: client, ReferencePercentile: 95, MemoryBufferPercentage: 15, OOMMemoryBufferPercentage: 25, DeviationWarnPct: 50}
}

func (a *AIAssisted) Name() string { return "ai-assisted" }

func (a *AIAssisted) RequiredMetricKinds() []dialect.Kind {
	return []dialect.Kind{dialect.CPUUsage, dialect.CPUPoints, dialect.Memory, dialect.MaxMemory, dialect.MemoryPoints, dialect.OOMKilledMemory}
}

func (a *AIAssisted) RequiredPercentiles() []float64 { return []float64{a.ReferencePercentile} }

func (a *AIAssisted) Recommend(bundle *metricsvc.Bundle, ctx Context) Result {
	r := newResult(ctx.ContainerName)

	if bundle.CPUPointCount() < ctx.PointsRequired || bundle.MemoryPointCount() < ctx.PointsRequired {
		r.States["cpu"] = StateUndefined
		r.States["memory"] = StateUndefined
		r.Info["cpu"] = "not enough data"
		r.Info["memory"] = "not enough data"
		return r
	}

	cpuStats := computeStats(bundle.Series[dialect.CPUUsage])
	memStats := computeStats(bundle.Series[dialect.Memory])
	prompt := composePrompt(cpuStats, memStats)

	baseline := recommendSimple(bundle, ctx, cpuPercentileSpec{request: a.ReferencePercentile}, a.MemoryBufferPercentage, a.OOMMemoryBufferPercentage)

	advice, err := a.Client.Recommend(context.Background(), prompt)
	if err != nil {
		r.States["cpu"] = StateUndefined
		r.States["memory"] = StateUndefined
		r.Info["cpu"] = fmt.Sprintf("AI strategy failed: %v", err)
		r.Info["memory"] = fmt.Sprintf("AI strategy failed: %v", err)
		return r
	}

	cpuCores, cpuClamped := clampFloat(advice.CPURequestCores, aiMinCPUCores, aiMaxCPUCores)
	memBytes, memClamped := clampFloat(float64(advice.MemRequestBytes), aiMinMemoryBytes, aiMaxMemoryBytes)

	cpuMillis := int64(cpuCores * 1000)
	memBytesInt := int64(memBytes)
	r.Recommendation.CPURequestMillicores = &cpuMillis
	r.Recommendation.MemRequestBytes = &memBytesInt
	r.Recommendation.MemLimitBytes = &memBytesInt
	if advice.CPULimitCores != nil {
		limCores, _ := clampFloat(*advice.CPULimitCores, aiMinCPUCores, aiMaxCPUCores)
		limMillis := int64(limCores * 1000)
		r.Recommendation.CPULimitMillicores = &limMillis
	}

	deviates := deviatesFromBaseline(&cpuMillis, baseline.Recommendation.CPURequestMillicores, a.DeviationWarnPct) ||
		deviatesFromBaseline(&memBytesInt, baseline.Recommendation.MemRequestBytes, a.DeviationWarnPct)

	r.States["cpu"] = StateOK
	r.States["memory"] = StateOK
	r.Info["cpu"] = fmt.Sprintf("AI-assisted (confidence %d%%): %s", advice.ConfidencePct, advice.Reasoning)
	r.Info["memory"] = r.Info["cpu"]

	if cpuClamped || memClamped || deviates {
		r.States["cpu"] = StateClamped
		r.States["memory"] = StateClamped
		warning := fmt.Sprintf(" [warning: clamped or deviates >%g%% from simple baseline]", a.DeviationWarnPct)
		r.Info["cpu"] += warning
		r.Info["memory"] += warning
	}
	return r
}

func clampFloat(v, lo, hi float64) (float64, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

// deviatesFromBaseline reports whether the AI's value differs from the
// Simple baseline by more than warnPct percent (spec.md §4.4.3,
// rsconfig.Config.AIDeviationWarnPct).
func deviatesFromBaseline(ai, baseline *int64, warnPct float64) bool {
	if baseline == nil || *baseline == 0 {
		return false
	}
	diff := float64(*ai-*baseline) / float64(*baseline)
	if diff < 0 {
		diff = -diff
	}
	return diff > warnPct/100
}

func computeStats(series []metricsvc.Series) Stats {
	values := seriesValues(series)
	var allSamples []metricsvc.Sample
	for _, s := range series {
		allSamples = append(allSamples, s.Samples...)
	}
	return Stats{
		P50: percentile(values, 50), P75: percentile(values, 75), P90: percentile(values, 90),
		P95: percentile(values, 95), P99: percentile(values, 99),
		Max: maxOf(values), Mean: mean(values), StdDev: stddev(values),
		TrendSlopePerHour: linearTrendSlope(allSamples),
		SpikeCount:        spikeCount(values),
	}
}

// composePrompt renders the feature summary an LLM would receive. The
// vendor-specific request/response shape is out of scope (spec.md §1); this
// only needs to be a deterministic, readable digest of the Stats.
func composePrompt(cpu, mem Stats) string {
	return fmt.Sprintf(
		"CPU cores — p50=%.4f p95=%.4f p99=%.4f mean=%.4f stddev=%.4f trend/h=%.6f spikes=%d\n"+
			"Memory bytes — p50=%.0f p95=%.0f p99=%.0f mean=%.0f stddev=%.0f trend/h=%.2f spikes=%d\n"+
			"Recommend {cpu_request, cpu_limit|null, mem_request, mem_limit, confidence_0_100, reasoning} as JSON.",
		cpu.P50, cpu.P95, cpu.P99, cpu.Mean, cpu.StdDev, cpu.TrendSlopePerHour, cpu.SpikeCount,
		mem.P50, mem.P95, mem.P99, mem.Mean, mem.StdDev, mem.TrendSlopePerHour, mem.SpikeCount,
	)
}
