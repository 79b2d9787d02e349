// Package discovery enumerates Kubernetes workloads and their pods for the
// scan pipeline (C3 in the component design): Prometheus-preferred,
// live-API-fallback owner and pod discovery, HPA gating, Job grouping.
package discovery

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// Kind is a workload controller kind.
type Kind int

const (
	Deployment Kind = iota
	StatefulSet
	DaemonSet
	Job
	CronJob
	Rollout
	DeploymentConfig
	StrimziPodSet
	GroupedJob
)

func (k Kind) String() string {
	switch k {
	case Deployment:
		return "Deployment"
	case StatefulSet:
		return "StatefulSet"
	case DaemonSet:
		return "DaemonSet"
	case Job:
		return "Job"
	case CronJob:
		return "CronJob"
	case Rollout:
		return "Rollout"
	case DeploymentConfig:
		return "DeploymentConfig"
	case StrimziPodSet:
		return "StrimziPodSet"
	case GroupedJob:
		return "GroupedJob"
	default:
		return "Unknown"
	}
}

// builtinKinds lists kinds backed directly by k8s.io/client-go typed
// clientsets. Rollout (Argo), DeploymentConfig (OpenShift), and
// StrimziPodSet are CRDs with no enumeration path: when named in
// Filter.Kinds they are skipped with a DEBUG log line, whether or not a
// DynamicClient is supplied on the Cluster.
func builtinKinds() []Kind { return []Kind{Deployment, StatefulSet, DaemonSet, Job, CronJob} }

// ResourceAllocations mirrors a container's declared requests/limits. A nil
// pointer means the value is undefined/unset on the container spec.
type ResourceAllocations struct {
	CPURequestMillicores *int64
	CPULimitMillicores   *int64
	MemRequestBytes      *int64
	MemLimitBytes        *int64
}

// ContainerSpec is one (workload, container_name) slot with its declared
// allocations, the atomic unit of recommendation.
type ContainerSpec struct {
	Name        string
	Allocations ResourceAllocations
}

// Pod is a minimal pod record: enough identity for metric queries plus a
// liveness flag.
type Pod struct {
	Name    string
	Running bool
}

// HPADescriptor describes a HorizontalPodAutoscaler targeting a workload.
type HPADescriptor struct {
	Name          string
	MinReplicas   int32
	MaxReplicas   int32
	TargetsCPU    bool
	TargetsMemory bool
}

// Workload is the identity tuple (cluster, namespace, kind, name) plus its
// current pods, declared container specs, and any HPA/warnings accumulated
// during discovery. Built once by the discoverer, read-only thereafter.
type Workload struct {
	Cluster   string
	Namespace string
	Kind      Kind
	Name      string

	Containers []ContainerSpec
	Pods       []Pod
	HPA        *HPADescriptor
	Warnings   []string

	// GroupedJobNames lists the individual Job names folded into this
	// GroupedJob workload (empty for every other Kind).
	GroupedJobNames []string
}

func (w *Workload) warn(format string, args ...interface{}) {
	w.Warnings = append(w.Warnings, fmt.Sprintf(format, args...))
}

// Filter is the predicate controlling which workloads Discover emits.
type Filter struct {
	Namespaces       []string // globs; empty means all namespaces
	Kinds            []Kind   // empty means builtinKinds()
	LabelSelector    string
	AllowHPA         bool
	JobGroupingKeys  []string // label keys that define a GroupedJob group
}

// Cluster is the logical address of one Kubernetes control plane and its
// paired Prometheus backend, per spec.md §3. The core never constructs
// these clients itself; they are injected by the caller.
type Cluster struct {
	Name          string
	KubeClient    kubernetes.Interface
	DynamicClient dynamic.Interface          // optional; accepted, but no kind is enumerated through it
	MetricsClient metricsclientset.Interface // optional, corroborates pod liveness when the Pods list call fails
	PromService   *metricsvc.Service
	Builder       dialect.Builder
	Window        dialect.Window
}
