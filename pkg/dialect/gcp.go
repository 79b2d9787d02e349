package dialect

import "fmt"

// gcpBuilder implements both GCP Managed Prometheus and Anthos: the two
// dialects differ only by a metric-name prefix (spec.md §4.1: "Anthos: Same
// as GCP but with the kubernetes.io/anthos/container/... prefix").
type gcpBuilder struct {
	label  ClusterLabel
	prefix string // "kubernetes.io/" or "kubernetes.io/anthos/"
}

func (b *gcpBuilder) Dialect() Dialect {
	if b.prefix == "kubernetes.io/anthos/" {
		return Anthos
	}
	return GCPManaged
}

func (b *gcpBuilder) metric(name string) string {
	return fmt.Sprintf(`"__name__"="%scontainer/%s"`, b.prefix, name)
}

// matchers renders the UTF-8 braced matcher set for a slot, including the
// mandatory monitored_resource="k8s_container" matcher.
func (b *gcpBuilder) matchers(metricName string, slot Slot) string {
	return fmt.Sprintf(
		`{%s, "monitored_resource"="k8s_container", "namespace_name"="%s", "pod_name"=~"%s", "container_name"="%s"%s}`,
		b.metric(metricName), slot.Namespace, slot.PodRegex(), slot.Container, b.label.matcherQuoted(),
	)
}

// labelReplace wraps a raw expression so the pod_name/container_name labels
// GCP exposes are normalized to the standard "pod"/"container" names every
// downstream consumer expects, per spec.md §4.1.
func labelReplace(expr string) string {
	inner := fmt.Sprintf(`label_replace(%s, "pod", "$1", "pod_name", "(.+)")`, expr)
	return fmt.Sprintf(`label_replace(%s, "container", "$1", "container_name", "(.+)")`, inner)
}

func (b *gcpBuilder) cpuQuery(slot Slot, step string) string {
	m := b.matchers("cpu/core_usage_time", slot)
	raw := fmt.Sprintf("max by (container_name, pod_name, job) (rate(%s[%s]))", m, step)
	return labelReplace(raw)
}

func (b *gcpBuilder) memQuery(slot Slot) string {
	m := b.matchers("memory/used_bytes", slot)
	raw := fmt.Sprintf("max by (container_name, pod_name, job) (%s)", m)
	return labelReplace(raw)
}

func (b *gcpBuilder) CPUUsage(slot Slot, w Window) string {
	return b.cpuQuery(slot, w.stepString())
}

func (b *gcpBuilder) PercentileCPU(slot Slot, w Window, percentile float64) string {
	return fmt.Sprintf(
		"quantile_over_time(%.2f, %s [%s:%s])",
		percentile/100, b.cpuQuery(slot, w.stepString()), w.historyString(), w.stepString(),
	)
}

func (b *gcpBuilder) CPUPoints(slot Slot, w Window) string {
	return fmt.Sprintf(
		"count_over_time(%s [%s:%s])",
		b.cpuQuery(slot, w.stepString()), w.historyString(), w.stepString(),
	)
}

func (b *gcpBuilder) Memory(slot Slot, w Window) string {
	return b.memQuery(slot)
}

func (b *gcpBuilder) MaxMemory(slot Slot, w Window) string {
	return fmt.Sprintf(
		"max_over_time(%s [%s:%s])",
		b.memQuery(slot), w.historyString(), w.stepString(),
	)
}

func (b *gcpBuilder) MemoryPoints(slot Slot, w Window) string {
	return fmt.Sprintf(
		"count_over_time(%s [%s:%s])",
		b.memQuery(slot), w.historyString(), w.stepString(),
	)
}

// OOMKilledMemory has no direct signal on GCP/Anthos; it is inferred from
// memory_limit_bytes * restart_count when useOOMKillData is set, per
// spec.md §4.1's documented inference formula. The open question in spec.md
// §9 is recorded without endorsement: any restart with a high limit reads
// as an OOM event.
func (b *gcpBuilder) OOMKilledMemory(slot Slot, w Window, useOOMKillData bool) (string, bool) {
	if !useOOMKillData {
		return "", false
	}
	limitMatchers := b.matchers("memory/limit_bytes", slot)
	restartMatchers := b.matchers("restart_count", slot)
	raw := fmt.Sprintf(
		"max_over_time( max by(pod_name,container_name,job)(%s) * on(pod_name,container_name,job) group_left() max by(pod_name,container_name,job)(%s) [%s:%s])",
		limitMatchers, restartMatchers, w.historyString(), w.stepString(),
	)
	return labelReplace(raw), true
}

// PodOwners and PodLiveness have no GCP/Anthos equivalent: these rely on
// kube-state-metrics, which Google Managed Prometheus does not scrape.
func (b *gcpBuilder) PodOwners(kind OwnerKind, namespace string, ownerNames []string, w Window) (string, bool) {
	return "", false
}

func (b *gcpBuilder) PodLiveness(namespace string, pods []string) (string, bool) {
	return "", false
}
