package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/costlens/rightsizer/internal/rslog"
	"github.com/costlens/rightsizer/pkg/dialect"
)

// AuthError marks a discovery failure that should abort scanning of one
// cluster without affecting the others (spec.md §7: 401/403 from kube or
// prom aborts the current cluster).
type AuthError struct {
	Cluster string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("cluster %s: auth error: %v", e.Cluster, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

// Discoverer enumerates workloads for a set of clusters under a Filter. The
// output stream is finite and not restartable, per spec.md §4.3.
type Discoverer struct {
	filter         Filter
	allowHPA       bool
	ownerBatchSize int
}

// NewDiscoverer builds a Discoverer from the given Filter. ownerBatchSize
// caps how many owner names are joined into a single regex-OR query
// (rsconfig.Config.OwnerBatchSize); a value <= 0 falls back to
// defaultOwnerBatchSize.
func NewDiscoverer(filter Filter, ownerBatchSize int) *Discoverer {
	if ownerBatchSize <= 0 {
		ownerBatchSize = defaultOwnerBatchSize
	}
	return &Discoverer{filter: filter, allowHPA: filter.AllowHPA, ownerBatchSize: ownerBatchSize}
}

// Discover streams Workloads for every cluster. Per-cluster fatal errors
// (kube API unauthorized) are sent on the error channel and that cluster's
// enumeration stops; other clusters continue. Both channels are closed when
// discovery is complete or ctx is cancelled.
func (d *Discoverer) Discover(ctx context.Context, clusters []*Cluster) (<-chan Workload, <-chan error) {
	out := make(chan Workload)
	errs := make(chan error, len(clusters))

	go func() {
		defer close(out)
		defer close(errs)
		for _, c := range clusters {
			if ctx.Err() != nil {
				return
			}
			if err := d.discoverCluster(ctx, c, out); err != nil {
				errs <- err
			}
		}
	}()

	return out, errs
}

func (d *Discoverer) discoverCluster(ctx context.Context, c *Cluster, out chan<- Workload) error {
	kinds := d.filter.Kinds
	if len(kinds) == 0 {
		kinds = builtinKinds()
	}

	jobsDone := false
	for _, kind := range kinds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch kind {
		case Deployment:
			if err := d.discoverDeployments(ctx, c, out); err != nil {
				if ae, ok := asAuthError(c.Name, err); ok {
					return ae
				}
				rslog.Warn("cluster %s: listing Deployments failed: %v", c.Name, err)
			}
		case StatefulSet:
			if err := d.discoverStatefulSets(ctx, c, out); err != nil {
				if ae, ok := asAuthError(c.Name, err); ok {
					return ae
				}
				rslog.Warn("cluster %s: listing StatefulSets failed: %v", c.Name, err)
			}
		case DaemonSet:
			if err := d.discoverDaemonSets(ctx, c, out); err != nil {
				if ae, ok := asAuthError(c.Name, err); ok {
					return ae
				}
				rslog.Warn("cluster %s: listing DaemonSets failed: %v", c.Name, err)
			}
		case Job, CronJob:
			// discoverJobs covers both kinds in one pass; run it only once.
			if jobsDone {
				continue
			}
			jobsDone = true
			if err := d.discoverJobs(ctx, c, out); err != nil {
				if ae, ok := asAuthError(c.Name, err); ok {
					return ae
				}
				rslog.Warn("cluster %s: listing Jobs failed: %v", c.Name, err)
			}
		case Rollout, DeploymentConfig, StrimziPodSet:
			if c.DynamicClient == nil {
				rslog.Debug("cluster %s: %s requires a dynamic client, none supplied; skipping", c.Name, kind)
				continue
			}
			rslog.Debug("cluster %s: %s discovery via dynamic client is not wired in this build; skipping", c.Name, kind)
		}
	}
	return nil
}

func asAuthError(cluster string, err error) (*AuthError, bool) {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		return &AuthError{Cluster: cluster, Err: err}, true
	}
	return nil, false
}

func (d *Discoverer) namespaceMatches(ns string) bool {
	if len(d.filter.Namespaces) == 0 {
		return true
	}
	for _, pattern := range d.filter.Namespaces {
		if ok, _ := filepath.Match(pattern, ns); ok {
			return true
		}
	}
	return false
}

func containerSpecsFrom(spec corev1.PodSpec) []ContainerSpec {
	out := make([]ContainerSpec, 0, len(spec.Containers))
	for _, c := range spec.Containers {
		out = append(out, ContainerSpec{
			Name:        c.Name,
			Allocations: allocationsFrom(c.Resources),
		})
	}
	return out
}

func allocationsFrom(r corev1.ResourceRequirements) ResourceAllocations {
	var a ResourceAllocations
	if q, ok := r.Requests[corev1.ResourceCPU]; ok {
		v := q.MilliValue()
		a.CPURequestMillicores = &v
	}
	if q, ok := r.Limits[corev1.ResourceCPU]; ok {
		v := q.MilliValue()
		a.CPULimitMillicores = &v
	}
	if q, ok := r.Requests[corev1.ResourceMemory]; ok {
		v := q.Value()
		a.MemRequestBytes = &v
	}
	if q, ok := r.Limits[corev1.ResourceMemory]; ok {
		v := q.Value()
		a.MemLimitBytes = &v
	}
	return a
}

func (d *Discoverer) finalizeWorkload(ctx context.Context, c *Cluster, w *Workload, ownerNames []string, ownerKind string, podSelector string) {
	pods, warning := d.podsForOwner(ctx, c, w.Namespace, ownerNames, podSelector)
	w.Pods = pods
	if warning != "" {
		w.warn("%s", warning)
	}
	if len(pods) == 0 {
		w.warn("no pods found for %s/%s", ownerKind, w.Name)
	}
	d.attachHPA(ctx, c, w)
}

func (d *Discoverer) discoverDeployments(ctx context.Context, c *Cluster, out chan<- Workload) error {
	list, err := c.KubeClient.AppsV1().Deployments("").List(ctx, metav1.ListOptions{LabelSelector: d.filter.LabelSelector})
	if err != nil {
		return err
	}
	for _, dep := range list.Items {
		if !d.namespaceMatches(dep.Namespace) {
			continue
		}
		w := Workload{Cluster: c.Name, Namespace: dep.Namespace, Kind: Deployment, Name: dep.Name}
		w.Containers = containerSpecsFrom(dep.Spec.Template.Spec)

		rsNames, warn := d.replicaSetOwnerNamesForDeployment(ctx, c, dep)
		if warn != "" {
			w.warn("%s", warn)
		}
		podSelector := metav1.FormatLabelSelector(dep.Spec.Selector)
		d.finalizeWorkload(ctx, c, &w, rsNames, "Deployment", podSelector)

		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Discoverer) replicaSetOwnerNamesForDeployment(ctx context.Context, c *Cluster, dep appsv1.Deployment) ([]string, string) {
	return d.replicaSetOwnerNames(ctx, c, dep.Namespace, dep.Name, dialect.ReplicaSetOwner)
}

func (d *Discoverer) discoverStatefulSets(ctx context.Context, c *Cluster, out chan<- Workload) error {
	list, err := c.KubeClient.AppsV1().StatefulSets("").List(ctx, metav1.ListOptions{LabelSelector: d.filter.LabelSelector})
	if err != nil {
		return err
	}
	for _, ss := range list.Items {
		if !d.namespaceMatches(ss.Namespace) {
			continue
		}
		w := Workload{Cluster: c.Name, Namespace: ss.Namespace, Kind: StatefulSet, Name: ss.Name}
		w.Containers = containerSpecsFrom(ss.Spec.Template.Spec)
		podSelector := metav1.FormatLabelSelector(ss.Spec.Selector)
		d.finalizeWorkload(ctx, c, &w, []string{ss.Name}, "StatefulSet", podSelector)

		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Discoverer) discoverDaemonSets(ctx context.Context, c *Cluster, out chan<- Workload) error {
	list, err := c.KubeClient.AppsV1().DaemonSets("").List(ctx, metav1.ListOptions{LabelSelector: d.filter.LabelSelector})
	if err != nil {
		return err
	}
	for _, ds := range list.Items {
		if !d.namespaceMatches(ds.Namespace) {
			continue
		}
		w := Workload{Cluster: c.Name, Namespace: ds.Namespace, Kind: DaemonSet, Name: ds.Name}
		w.Containers = containerSpecsFrom(ds.Spec.Template.Spec)
		podSelector := metav1.FormatLabelSelector(ds.Spec.Selector)
		d.finalizeWorkload(ctx, c, &w, []string{ds.Name}, "DaemonSet", podSelector)

		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// discoverJobs lists Jobs across all namespaces, removes CronJob-owned Jobs
// from the standalone pool (they are surfaced as CronJob workloads
// instead), groups the remainder per JobGroupingKeys, and emits both
// GroupedJob and standalone Job workloads. CronJob workloads are emitted
// only when Filter.Kinds is empty or names CronJob; Job and GroupedJob
// workloads only when it is empty or names Job.
func (d *Discoverer) discoverJobs(ctx context.Context, c *Cluster, out chan<- Workload) error {
	wantJobs, wantCronJobs := len(d.filter.Kinds) == 0, len(d.filter.Kinds) == 0
	for _, k := range d.filter.Kinds {
		switch k {
		case Job:
			wantJobs = true
		case CronJob:
			wantCronJobs = true
		}
	}

	list, err := c.KubeClient.BatchV1().Jobs("").List(ctx, metav1.ListOptions{LabelSelector: d.filter.LabelSelector})
	if err != nil {
		return err
	}

	var cronOwned, rest []batchv1.Job
	for _, j := range list.Items {
		if !d.namespaceMatches(j.Namespace) {
			continue
		}
		if ownerKind := jobOwnerControllerKind(j); ownerKind == "CronJob" {
			cronOwned = append(cronOwned, j)
		} else {
			rest = append(rest, j)
		}
	}

	if wantCronJobs {
		if err := d.emitCronJobWorkloads(ctx, c, cronOwned, out); err != nil {
			return err
		}
	}
	if !wantJobs {
		return nil
	}

	groups, standalone := groupJobs(rest, d.filter.JobGroupingKeys)
	for _, g := range groups {
		w := Workload{Cluster: c.Name, Namespace: g.jobs[0].Namespace, Kind: GroupedJob, Name: g.groupName(), GroupedJobNames: g.jobNames()}
		for _, j := range g.jobs {
			w.Containers = append(w.Containers, containerSpecsFrom(j.Spec.Template.Spec)...)
		}
		podSelector := metav1.FormatLabelSelector(g.jobs[0].Spec.Selector)
		d.finalizeWorkload(ctx, c, &w, g.jobNames(), "GroupedJob", podSelector)
		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, j := range standalone {
		w := Workload{Cluster: c.Name, Namespace: j.Namespace, Kind: Job, Name: j.Name}
		w.Containers = containerSpecsFrom(j.Spec.Template.Spec)
		podSelector := metav1.FormatLabelSelector(j.Spec.Selector)
		d.finalizeWorkload(ctx, c, &w, []string{j.Name}, "Job", podSelector)
		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Discoverer) emitCronJobWorkloads(ctx context.Context, c *Cluster, cronOwnedJobs []batchv1.Job, out chan<- Workload) error {
	byCronJob := make(map[string][]batchv1.Job)
	for _, j := range cronOwnedJobs {
		name := cronJobOwnerName(j)
		byCronJob[name] = append(byCronJob[name], j)
	}

	cronList, err := c.KubeClient.BatchV1().CronJobs("").List(ctx, metav1.ListOptions{LabelSelector: d.filter.LabelSelector})
	if err != nil {
		return err
	}
	for _, cj := range cronList.Items {
		if !d.namespaceMatches(cj.Namespace) {
			continue
		}
		jobNames, _ := d.replicaSetOwnerNames(ctx, c, cj.Namespace, cj.Name, dialect.JobOwner)

		w := Workload{Cluster: c.Name, Namespace: cj.Namespace, Kind: CronJob, Name: cj.Name}
		w.Containers = containerSpecsFrom(cj.Spec.JobTemplate.Spec.Template.Spec)

		names := jobNames
		if len(names) == 0 {
			for _, j := range byCronJob[cj.Name] {
				names = append(names, j.Name)
			}
		}
		d.finalizeWorkload(ctx, c, &w, names, "CronJob", "")
		select {
		case out <- w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func jobOwnerControllerKind(j batchv1.Job) string {
	for _, r := range j.OwnerReferences {
		if r.Controller != nil && *r.Controller {
			return r.Kind
		}
	}
	return ""
}

func cronJobOwnerName(j batchv1.Job) string {
	for _, r := range j.OwnerReferences {
		if r.Kind == "CronJob" {
			return r.Name
		}
	}
	return ""
}
