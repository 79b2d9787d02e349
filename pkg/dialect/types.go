// Package dialect builds PromQL query strings for the three supported
// Prometheus-compatible backends (Standard, GCP Managed Prometheus, Anthos).
// A Builder is a pure function of its inputs: it performs no I/O and carries
// no state beyond the dialect tag and optional cluster label it was built
// with.
package dialect

import (
	"fmt"
	"strings"
	"time"
)

// Dialect tags which Prometheus-compatible backend a Builder targets.
type Dialect int

const (
	Standard Dialect = iota
	GCPManaged
	Anthos
)

func (d Dialect) String() string {
	switch d {
	case GCPManaged:
		return "gcp"
	case Anthos:
		return "anthos"
	default:
		return "standard"
	}
}

// Kind is one entry in the fixed metric-kind catalog.
type Kind int

const (
	CPUUsage Kind = iota
	PercentileCPU
	CPUPoints
	Memory
	MaxMemory
	MemoryPoints
	OOMKilledMemory
)

func (k Kind) String() string {
	switch k {
	case CPUUsage:
		return "CPUUsage"
	case PercentileCPU:
		return "PercentileCPU"
	case CPUPoints:
		return "CPUPoints"
	case Memory:
		return "Memory"
	case MaxMemory:
		return "MaxMemory"
	case MemoryPoints:
		return "MemoryPoints"
	case OOMKilledMemory:
		return "OOMKilledMemory"
	default:
		return "Unknown"
	}
}

// OwnerKind names the controller relationship a discovery query chases.
type OwnerKind int

const (
	ReplicaSetOwner OwnerKind = iota
	ReplicationControllerOwner
	JobOwner
	PodOwner
)

// Slot identifies the container a query is scoped to: a namespace, the set
// of pod names it may match (joined as a regex alternation), and a single
// container name.
type Slot struct {
	Namespace string
	Pods      []string
	Container string
}

// PodRegex returns the pods joined as a PromQL regex alternation, e.g.
// "pod-a|pod-b". An empty Pods list matches everything (".*").
func (s Slot) PodRegex() string {
	if len(s.Pods) == 0 {
		return ".*"
	}
	return strings.Join(s.Pods, "|")
}

// Window is the lookback interval and resample granularity for a query.
type Window struct {
	History time.Duration
	Step    time.Duration
}

// historyString renders History the way PromQL range-vector literals expect
// (e.g. "14d" for 336h, "75s"). Prometheus accepts compound duration literals, but
// the builder always emits a single unit to keep queries byte-identical for
// the idempotence property in spec.md §8.
func (w Window) historyString() string {
	return durationLiteral(w.History)
}

func (w Window) stepString() string {
	return durationLiteral(w.Step)
}

func durationLiteral(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0 && d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int64(d/(24*time.Hour)))
	case d%time.Hour == 0 && d >= time.Hour:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	case d%time.Minute == 0 && d >= time.Minute:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	default:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
}

// ClusterLabel filters every query to a single logical cluster when one
// Prometheus instance serves several. A zero-value ClusterLabel (empty Key)
// injects nothing.
type ClusterLabel struct {
	Key   string
	Value string
}

func (c ClusterLabel) empty() bool { return c.Key == "" }

// matcher renders the label as a comma-prefixed matcher fragment meant to be
// appended inside an existing brace set, e.g. `, cluster_name="prod-1"`.
// Returns "" when the label is unset so callers can concatenate
// unconditionally without producing a double comma.
func (c ClusterLabel) matcher() string {
	if c.empty() {
		return ""
	}
	return fmt.Sprintf(`, %s="%s"`, c.Key, c.Value)
}

// matcherQuoted is the GCP/Anthos UTF-8 braced-syntax equivalent of
// matcher(): every label key there, including the cluster label, is itself
// a quoted string, e.g. `, "cluster_name"="prod-1"` (spec.md §4.1).
func (c ClusterLabel) matcherQuoted() string {
	if c.empty() {
		return ""
	}
	return fmt.Sprintf(`, "%s"="%s"`, c.Key, c.Value)
}

// Builder produces query strings for a fixed dialect. Implementations carry
// no mutable state: every method is a pure function of its arguments plus
// the builder's dialect and cluster label.
type Builder interface {
	Dialect() Dialect

	// CPUUsage returns the instantaneous per-pod CPU rate query.
	CPUUsage(slot Slot, w Window) string
	// PercentileCPU returns the p-th percentile of CPUUsage over the window.
	PercentileCPU(slot Slot, w Window, percentile float64) string
	// CPUPoints returns a count of CPU samples per pod.
	CPUPoints(slot Slot, w Window) string
	// Memory returns the working-set-bytes query.
	Memory(slot Slot, w Window) string
	// MaxMemory returns the scalar max-over-window memory query.
	MaxMemory(slot Slot, w Window) string
	// MemoryPoints returns a count of memory samples per pod.
	MemoryPoints(slot Slot, w Window) string
	// OOMKilledMemory returns the OOM-kill memory query, or ok=false if the
	// dialect cannot express it (and inference was not requested/possible).
	OOMKilledMemory(slot Slot, w Window, useOOMKillData bool) (query string, ok bool)

	// PodOwners returns the discovery query chasing an owner relationship,
	// or ok=false on dialects lacking kube-state-metrics equivalents.
	PodOwners(kind OwnerKind, namespace string, ownerNames []string, w Window) (query string, ok bool)
	// PodLiveness returns the query flagging which pods are currently
	// Running, or ok=false if unsupported on this dialect.
	PodLiveness(namespace string, pods []string) (query string, ok bool)
}

// New returns the Builder for the given dialect and optional cluster label.
func New(d Dialect, label ClusterLabel) Builder {
	switch d {
	case GCPManaged:
		return &gcpBuilder{label: label, prefix: "kubernetes.io/"}
	case Anthos:
		return &gcpBuilder{label: label, prefix: "kubernetes.io/anthos/"}
	default:
		return &standardBuilder{label: label}
	}
}

// DetectDialect implements the auto-detection rule from §4.2: a Prometheus
// URL host of monitoring.googleapis.com selects GCP Managed Prometheus; if
// the caller additionally requested Anthos mode, Anthos is selected instead.
func DetectDialect(prometheusURL string, anthosRequested bool) Dialect {
	if strings.Contains(prometheusURL, "monitoring.googleapis.com") {
		if anthosRequested {
			return Anthos
		}
		return GCPManaged
	}
	return Standard
}
