package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/costlens/rightsizer/internal/rslog"
	"github.com/costlens/rightsizer/pkg/dialect"
)

// defaultOwnerBatchSize matches spec.md §4.3 step 5's default batch size for
// owner-name lookups.
const defaultOwnerBatchSize = 200

// batchNames splits names into chunks of at most size, used to keep
// regex-OR owner queries from growing unbounded (spec.md §4.3, §5).
func batchNames(names []string, size int) [][]string {
	if size <= 0 {
		size = defaultOwnerBatchSize
	}
	var batches [][]string
	for i := 0; i < len(names); i += size {
		end := i + size
		if end > len(names) {
			end = len(names)
		}
		batches = append(batches, names[i:end])
	}
	return batches
}

// replicaSetOwnerNames enumerates ReplicaSet (or ReplicationController)
// names owned by a Deployment/DeploymentConfig, preferring a Prometheus
// kube_*_owner query (so recently-deleted replicas are included) and
// falling back to the live Kubernetes API with a DEBUG note, per spec.md
// §4.3 step 2.
func (d *Discoverer) replicaSetOwnerNames(ctx context.Context, c *Cluster, namespace, ownerName string, kind dialect.OwnerKind) ([]string, string) {
	resultLabel := ownerResultLabel(kind)
	if c.PromService != nil && dialect.SupportsPodDiscovery(c.Builder.Dialect()) {
		q, ok := c.Builder.PodOwners(kind, namespace, []string{ownerName}, c.Window)
		if ok {
			vec, err := c.PromService.QueryVector(ctx, q, time.Now())
			if err == nil {
				names := extractPromLabel(vec, resultLabel)
				if len(names) > 0 {
					return names, ""
				}
			} else {
				rslog.Debug("owner query failed for %s/%s, falling back to live API: %v", namespace, ownerName, err)
			}
		}
	}

	return d.liveOwnerNames(ctx, c, namespace, ownerName, kind)
}

// liveOwnerNames falls back to the live Kubernetes API when the
// Prometheus-assisted owner query is unavailable or empty.
func (d *Discoverer) liveOwnerNames(ctx context.Context, c *Cluster, namespace, ownerName string, kind dialect.OwnerKind) ([]string, string) {
	switch kind {
	case dialect.ReplicationControllerOwner:
		rcs, err := c.KubeClient.CoreV1().ReplicationControllers(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Sprintf("live ReplicationController lookup failed: %v", err)
		}
		var names []string
		for _, r := range rcs.Items {
			if ownedBy(r.OwnerReferences, ownerName) {
				names = append(names, r.Name)
			}
		}
		return names, "historical replicas missing: live API fallback used"
	case dialect.JobOwner:
		jobs, err := c.KubeClient.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Sprintf("live Job lookup failed: %v", err)
		}
		var names []string
		for _, j := range jobs.Items {
			if ownedBy(j.OwnerReferences, ownerName) {
				names = append(names, j.Name)
			}
		}
		return names, "historical jobs missing: live API fallback used"
	default:
		rs, err := c.KubeClient.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Sprintf("live ReplicaSet lookup failed: %v", err)
		}
		var names []string
		for _, r := range rs.Items {
			if ownedBy(r.OwnerReferences, ownerName) {
				names = append(names, r.Name)
			}
		}
		return names, "historical replicas missing: live API fallback used"
	}
}

// ownerResultLabel names the Prometheus label an owner query's result
// vector carries the discovered name under.
func ownerResultLabel(kind dialect.OwnerKind) string {
	switch kind {
	case dialect.ReplicationControllerOwner:
		return "replicationcontroller"
	case dialect.JobOwner:
		return "job_name"
	default:
		return "replicaset"
	}
}

func ownedBy(refs []metav1.OwnerReference, ownerName string) bool {
	for _, r := range refs {
		if r.Name == ownerName {
			return true
		}
	}
	return false
}

// podsForOwner enumerates the pod set for a workload, preferring a
// Prometheus kube_pod_owner query (so recently-deleted pods within the
// history window are included) with a live-API fallback, and flags
// liveness via kube_pod_status_phase when available (spec.md §4.3 step 3).
func (d *Discoverer) podsForOwner(ctx context.Context, c *Cluster, namespace string, ownerNames []string, podLabelSelector string) ([]Pod, string) {
	var pods []Pod
	var warning string

	if c.PromService != nil && dialect.SupportsPodDiscovery(c.Builder.Dialect()) {
		var names []string
		for _, batch := range batchNames(ownerNames, d.ownerBatchSize) {
			q, ok := c.Builder.PodOwners(dialect.PodOwner, namespace, batch, c.Window)
			if !ok {
				break
			}
			vec, err := c.PromService.QueryVector(ctx, q, time.Now())
			if err != nil {
				rslog.Debug("pod owner query failed for %s: %v", namespace, err)
				names = nil
				break
			}
			names = append(names, extractPromLabel(vec, "pod")...)
		}
		if len(names) > 0 {
			sort.Strings(names)
			names = dedupe(names)
			live := d.livePodRunningSet(ctx, c, namespace, podLabelSelector)
			for _, n := range names {
				pods = append(pods, Pod{Name: n, Running: live[n]})
			}
			return pods, ""
		}
		warning = "historical pods missing: live API fallback used"
	}

	list, err := c.KubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: podLabelSelector})
	if err != nil {
		return nil, fmt.Sprintf("live Pod lookup failed: %v", err)
	}
	for _, p := range list.Items {
		pods = append(pods, Pod{Name: p.Name, Running: p.Status.Phase == corev1.PodRunning})
	}
	return pods, warning
}

// livePodRunningSet resolves which pods are currently Running, preferring a
// Prometheus kube_pod_status_phase query (so it reuses the same backend as
// pod enumeration and avoids an extra live API round trip) with a live
// Kubernetes API fallback, corroborated by metrics.k8s.io when that also
// fails, per spec.md §4.1/§4.3 step 3.
func (d *Discoverer) livePodRunningSet(ctx context.Context, c *Cluster, namespace, labelSelector string) map[string]bool {
	if c.PromService != nil && dialect.SupportsPodDiscovery(c.Builder.Dialect()) {
		if set, ok := d.livePodRunningSetFromProm(ctx, c, namespace); ok {
			return set
		}
	}

	set := make(map[string]bool)
	list, err := c.KubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		if c.MetricsClient != nil {
			rslog.Debug("live Pod list failed for %s, corroborating liveness via metrics.k8s.io: %v", namespace, err)
			return d.livePodRunningSetFromMetrics(ctx, c, namespace, labelSelector)
		}
		return set
	}
	for _, p := range list.Items {
		set[p.Name] = p.Status.Phase == corev1.PodRunning
	}
	return set
}

// livePodRunningSetFromProm queries Builder.PodLiveness for the namespace's
// full pod set. ok is false when the dialect has no liveness equivalent
// (GCP/Anthos) or the query itself failed, so the caller falls back to the
// live API rather than treating an empty result as "nothing running".
func (d *Discoverer) livePodRunningSetFromProm(ctx context.Context, c *Cluster, namespace string) (map[string]bool, bool) {
	q, ok := c.Builder.PodLiveness(namespace, nil)
	if !ok {
		return nil, false
	}
	vec, err := c.PromService.QueryVector(ctx, q, time.Now())
	if err != nil {
		rslog.Debug("pod liveness query failed for %s, falling back to live API: %v", namespace, err)
		return nil, false
	}
	set := make(map[string]bool)
	for _, name := range extractPromLabel(vec, "pod") {
		set[name] = true
	}
	return set, true
}

// livePodRunningSetFromMetrics corroborates pod liveness via metrics.k8s.io
// when the core Pods API is unavailable: a pod currently reporting resource
// metrics is, by construction, running.
func (d *Discoverer) livePodRunningSetFromMetrics(ctx context.Context, c *Cluster, namespace, labelSelector string) map[string]bool {
	set := make(map[string]bool)
	list, err := c.MetricsClient.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		rslog.Debug("metrics.k8s.io PodMetricses lookup failed for %s: %v", namespace, err)
		return set
	}
	for _, m := range list.Items {
		set[m.Name] = true
	}
	return set
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
