package strategy

import (
	"math"
	"sort"

	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// percentile computes the p-th percentile (0-100) of values using linear
// interpolation between the two nearest ranks, the same method Prometheus'
// quantile_over_time and PromQL's histogram_quantile use.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	rank := (p / 100.0) * (n - 1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// linearTrendSlope fits y = slope*x + intercept over the series' samples
// (x in hours since the first sample) via ordinary least squares and
// returns slope, the per-hour rate of change used by the AI-assisted
// strategy's trend feature.
func linearTrendSlope(samples []metricsvc.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	t0 := samples[0].Timestamp
	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s.Timestamp-t0) / 3600.0
		y[i] = s.Value
	}

	meanX := mean(x)
	meanY := mean(y)
	var num, den float64
	for i := range x {
		num += (x[i] - meanX) * (y[i] - meanY)
		den += (x[i] - meanX) * (x[i] - meanX)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// spikeCount counts samples more than two standard deviations above the
// mean, a simple proxy for "burstiness" fed to the AI-assisted prompt.
func spikeCount(values []float64) int {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return 0
	}
	threshold := m + 2*sd
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return count
}

// seriesValues flattens every sample across a set of series into one slice,
// used where a statistic should be computed over all pods pooled together.
func seriesValues(series []metricsvc.Series) []float64 {
	var out []float64
	for _, s := range series {
		for _, sample := range s.Samples {
			out = append(out, sample.Value)
		}
	}
	return out
}

// maxScalarPerPod takes the first sample of every series (the scalar value
// for kinds evaluated once per pod, e.g. MaxMemory, PercentileCPU) and
// returns the maximum across pods, plus whether any series was present.
func maxScalarPerPod(series []metricsvc.Series) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	best := math.Inf(-1)
	found := false
	for _, s := range series {
		if len(s.Samples) == 0 {
			continue
		}
		found = true
		if v := s.Samples[0].Value; v > best {
			best = v
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}
