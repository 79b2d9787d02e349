package metricsvc

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/costlens/rightsizer/pkg/dialect"
)

// Bundle holds every metric kind a Strategy asked for, for one container
// slot. A kind the dialect cannot express (or that is switched off, like
// OOM inference) is present with an empty series set plus a warning rather
// than aborting the bundle.
type Bundle struct {
	Series   map[dialect.Kind][]Series
	// Percentiles holds PercentileCPU results keyed by the requested
	// percentile value, since a Strategy may request more than one (e.g.
	// request_percentile and limit_percentile differ) and Series alone
	// cannot distinguish them.
	Percentiles map[float64][]Series
	Warnings    []string
}

func newBundle() *Bundle {
	return &Bundle{Series: make(map[dialect.Kind][]Series), Percentiles: make(map[float64][]Series)}
}

// PercentileSeries returns the CPU percentile series fetched for p, or nil
// if that percentile was never requested.
func (b *Bundle) PercentileSeries(p float64) []Series {
	return b.Percentiles[p]
}

// CPUPointCount returns the minimum CPUPoints sample count across pods,
// used by the Strategy's points_required gate (spec.md §4.4).
func (b *Bundle) CPUPointCount() int {
	return minSampleCount(b.Series[dialect.CPUPoints])
}

// MemoryPointCount returns the minimum MemoryPoints sample count across pods.
func (b *Bundle) MemoryPointCount() int {
	return minSampleCount(b.Series[dialect.MemoryPoints])
}

func minSampleCount(series []Series) int {
	if len(series) == 0 {
		return 0
	}
	min := -1
	for _, s := range series {
		n := 0
		if len(s.Samples) == 1 {
			// Point-count queries return one scalar sample per pod holding
			// the count itself, not one sample per observation.
			n = int(s.Samples[0].Value)
		} else {
			n = len(s.Samples)
		}
		if min == -1 || n < min {
			min = n
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// BundleParams groups the fetch knobs the runner must supply alongside the
// requested metric kinds and percentiles.
type BundleParams struct {
	Slot           dialect.Slot
	Window         dialect.Window
	UseOOMKillData bool
}

// FetchBundle issues one query per requested Kind concurrently (the
// "sub-pool" fan-out within a single worker from spec.md §4.5) and merges
// the results into a Bundle. dialect.PercentileCPU expands into one query
// per value in percentiles (a Strategy's RequiredPercentiles), so e.g.
// SimpleLimit's request and limit percentiles are fetched separately and
// stored under their own keys in Bundle.Percentiles.
func FetchBundle(ctx context.Context, svc *Service, builder dialect.Builder, kinds []dialect.Kind, percentiles []float64, p BundleParams) (*Bundle, error) {
	bundle := newBundle()
	type fetchJob struct {
		kind       dialect.Kind
		percentile float64
	}

	var jobs []fetchJob
	for _, k := range kinds {
		if k == dialect.PercentileCPU {
			for _, pct := range percentiles {
				jobs = append(jobs, fetchJob{kind: k, percentile: pct})
			}
			continue
		}
		jobs = append(jobs, fetchJob{kind: k})
	}

	results := make([][]Series, len(jobs))
	warnings := make([]string, len(jobs))
	unsupported := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			q, ok := dialect.Query(builder, job.kind, p.Slot, p.Window, job.percentile, p.UseOOMKillData)
			if !ok {
				unsupported[i] = true
				warnings[i] = fmt.Sprintf("%s unsupported on %s dialect", kindLabel(job.kind, job.percentile), builder.Dialect())
				return nil
			}

			var series []Series
			var err error
			if isScalarPerPod(job.kind) {
				series, err = svc.InstantQuery(gctx, q, time.Now())
			} else {
				series, err = svc.RangeQuery(gctx, q, time.Now().Add(-p.Window.History), time.Now(), p.Window.Step)
			}
			if err != nil {
				warnings[i] = fmt.Sprintf("%s: %v", kindLabel(job.kind, job.percentile), err)
				return nil
			}
			results[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, job := range jobs {
		if warnings[i] != "" {
			bundle.Warnings = append(bundle.Warnings, warnings[i])
		}
		if unsupported[i] {
			continue
		}
		if job.kind == dialect.PercentileCPU {
			bundle.Percentiles[job.percentile] = append(bundle.Percentiles[job.percentile], results[i]...)
			continue
		}
		bundle.Series[job.kind] = append(bundle.Series[job.kind], results[i]...)
	}
	return bundle, nil
}

// isScalarPerPod reports whether kind resolves to a subquery expression
// evaluated once per pod (quantile_over_time/max_over_time/count_over_time
// at a single instant) rather than a per-step time series, per spec.md §3.
func isScalarPerPod(kind dialect.Kind) bool {
	switch kind {
	case dialect.PercentileCPU, dialect.MaxMemory, dialect.CPUPoints, dialect.MemoryPoints, dialect.OOMKilledMemory:
		return true
	default:
		return false
	}
}

func kindLabel(kind dialect.Kind, percentile float64) string {
	if kind == dialect.PercentileCPU {
		return fmt.Sprintf("PercentileCPU(%.0f)", percentile)
	}
	return kind.String()
}
