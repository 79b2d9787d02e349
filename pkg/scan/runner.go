package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/costlens/rightsizer/internal/rslog"
	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/discovery"
	"github.com/costlens/rightsizer/pkg/metricsvc"
	"github.com/costlens/rightsizer/pkg/rsconfig"
	"github.com/costlens/rightsizer/pkg/strategy"
)

// Runner is C5, the Scan Runner: it ties discovery, metric acquisition, and
// a Strategy together under a bounded worker pool. One Runner performs one
// scan across every supplied Cluster.
type Runner struct {
	Config   *rsconfig.Config
	Strategy strategy.Strategy
	Clusters []*discovery.Cluster
	Filter   discovery.Filter
}

// NewRunner builds a Runner from its required collaborators. The core never
// constructs kube/prom clients itself; the caller supplies fully wired
// Clusters.
func NewRunner(cfg *rsconfig.Config, strat strategy.Strategy, clusters []*discovery.Cluster, filter discovery.Filter) *Runner {
	return &Runner{Config: cfg, Strategy: strat, Clusters: clusters, Filter: filter}
}

// Run drains RunStream into a slice, plus every fatal per-cluster error
// encountered along the way (seed scenario 6: a 403 on one cluster surfaces
// here while the rest of the scan completes normally).
func (r *Runner) Run(ctx context.Context) ([]Result, []error) {
	results := make([]Result, 0)
	resultCh, errCh := r.RunStream(ctx)

	var errs []error
	for resultCh != nil || errCh != nil {
		select {
		case res, ok := <-resultCh:
			if !ok {
				resultCh = nil
				continue
			}
			results = append(results, res)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			errs = append(errs, err)
		}
	}
	return results, errs
}

// RunStream starts the scan in the background and streams results as they
// complete. Both channels close once discovery and every in-flight worker
// finish, or ctx is cancelled.
func (r *Runner) RunStream(ctx context.Context) (<-chan Result, <-chan error) {
	out := make(chan Result)
	fatal := make(chan error, len(r.Clusters))
	scanID := uuid.NewString()

	clusterByName := make(map[string]*discovery.Cluster, len(r.Clusters))
	for _, c := range r.Clusters {
		clusterByName[c.Name] = c
	}

	go func() {
		defer close(out)
		defer close(fatal)

		d := discovery.NewDiscoverer(r.Filter, r.Config.OwnerBatchSize)
		workloads, discoverErrs := d.Discover(ctx, r.Clusters)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.Config.MaxWorkers)

		// out is shared by every worker goroutine; sendResult serializes
		// writes onto it so the channel itself is the single append point
		// for the otherwise-concurrent result set (spec.md §5).
		var sendMu sync.Mutex
		sendResult := func(res Result) {
			sendMu.Lock()
			defer sendMu.Unlock()
			select {
			case out <- res:
			case <-ctx.Done():
			}
		}

		for workloads != nil || discoverErrs != nil {
			select {
			case w, ok := <-workloads:
				if !ok {
					workloads = nil
					continue
				}
				cluster := clusterByName[w.Cluster]
				g.Go(func() error {
					r.scanWorkload(gctx, scanID, cluster, w, sendResult)
					return nil
				})
			case err, ok := <-discoverErrs:
				if !ok {
					discoverErrs = nil
					continue
				}
				fatal <- err
			case <-ctx.Done():
				workloads = nil
				discoverErrs = nil
			}
		}

		_ = g.Wait() // scanWorkload never returns a non-nil error; it reports failures as undefined results instead.
	}()

	return out, fatal
}

// scanWorkload emits one Result per declared container in w. A workload
// discovered with zero pods is reported but never reaches the metric
// service or Strategy, per the "0 known pods" invariant.
func (r *Runner) scanWorkload(ctx context.Context, scanID string, cluster *discovery.Cluster, w discovery.Workload, emit func(Result)) {
	for _, c := range w.Containers {
		if ctx.Err() != nil {
			return
		}
		if cluster == nil {
			emit(undefinedResult(scanID, w, c.Name, "no cluster registered for this workload"))
			continue
		}
		if len(w.Pods) == 0 {
			emit(undefinedResult(scanID, w, c.Name, "no known pods"))
			continue
		}

		slot := dialect.Slot{Namespace: w.Namespace, Pods: allPodNames(w.Pods), Container: c.Name}
		params := metricsvc.BundleParams{Slot: slot, Window: cluster.Window, UseOOMKillData: r.Config.UseOOMKillData}

		bundle, err := metricsvc.FetchBundle(ctx, cluster.PromService, cluster.Builder, r.Strategy.RequiredMetricKinds(), r.Strategy.RequiredPercentiles(), params)
		if err != nil {
			rslog.Warn("cluster %s: %s/%s/%s: metric fetch failed: %v", w.Cluster, w.Namespace, w.Name, c.Name, err)
			emit(undefinedResult(scanID, w, c.Name, fmt.Sprintf("metric fetch failed: %v", err)))
			continue
		}

		stratCtx := strategy.Context{
			ContainerName:     c.Name,
			Current:           c.Allocations,
			HPA:               w.HPA,
			AllowHPA:          r.Config.AllowHPA,
			DiscoveryWarnings: w.Warnings,
			CPUMinMillicores:  r.Config.CPUMinMillicores,
			MemMinBytes:       r.Config.MemoryMinMiB * 1024 * 1024,
			PointsRequired:    r.Config.PointsRequired,
			UseOOMKillData:    r.Config.UseOOMKillData,
			Window:            cluster.Window,
		}

		sr := r.Strategy.Recommend(bundle, stratCtx)
		res := fromStrategyResult(scanID, w, sr)
		res.Warnings = append(res.Warnings, bundle.Warnings...)
		emit(res)
	}
}

// allPodNames includes every pod discovery enumerated for this workload,
// alive and recently-deleted alike, so their historical samples within the
// lookback window are still queried (spec.md §3).
func allPodNames(pods []discovery.Pod) []string {
	names := make([]string, 0, len(pods))
	for _, p := range pods {
		names = append(names, p.Name)
	}
	return names
}
