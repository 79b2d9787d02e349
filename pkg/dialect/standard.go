package dialect

import "fmt"

// Standard dialect metric and label names, per spec.md §4.1.
const (
	stdCPUMetric       = "container_cpu_usage_seconds_total"
	stdMemMetric       = "container_memory_working_set_bytes"
	stdOOMReasonMetric = "kube_pod_container_status_last_terminated_reason"
	stdMemLimitMetric  = "kube_pod_container_resource_limits"
	stdPhaseMetric     = "kube_pod_status_phase"
)

type standardBuilder struct {
	label ClusterLabel
}

func (b *standardBuilder) Dialect() Dialect { return Standard }

func (b *standardBuilder) matchers(slot Slot) string {
	return fmt.Sprintf(`namespace="%s", pod=~"%s", container="%s"%s`,
		slot.Namespace, slot.PodRegex(), slot.Container, b.label.matcher())
}

func (b *standardBuilder) cpuRateExpr(slot Slot, step string) string {
	return fmt.Sprintf(
		"max by (container, pod, job) (rate(%s{%s}[%s]))",
		stdCPUMetric, b.matchers(slot), step,
	)
}

func (b *standardBuilder) memExpr(slot Slot) string {
	return fmt.Sprintf(
		"max by (container, pod, job) (%s{%s})",
		stdMemMetric, b.matchers(slot),
	)
}

func (b *standardBuilder) CPUUsage(slot Slot, w Window) string {
	return b.cpuRateExpr(slot, w.stepString())
}

func (b *standardBuilder) PercentileCPU(slot Slot, w Window, percentile float64) string {
	return fmt.Sprintf(
		"quantile_over_time(%.2f, %s [%s:%s])",
		percentile/100, b.cpuRateExpr(slot, w.stepString()), w.historyString(), w.stepString(),
	)
}

func (b *standardBuilder) CPUPoints(slot Slot, w Window) string {
	return fmt.Sprintf(
		"count_over_time(%s [%s:%s])",
		b.cpuRateExpr(slot, w.stepString()), w.historyString(), w.stepString(),
	)
}

func (b *standardBuilder) Memory(slot Slot, w Window) string {
	return b.memExpr(slot)
}

func (b *standardBuilder) MaxMemory(slot Slot, w Window) string {
	return fmt.Sprintf(
		"max_over_time(%s [%s:%s])",
		b.memExpr(slot), w.historyString(), w.stepString(),
	)
}

func (b *standardBuilder) MemoryPoints(slot Slot, w Window) string {
	return fmt.Sprintf(
		"count_over_time(%s [%s:%s])",
		b.memExpr(slot), w.historyString(), w.stepString(),
	)
}

func (b *standardBuilder) OOMKilledMemory(slot Slot, w Window, useOOMKillData bool) (string, bool) {
	if !useOOMKillData {
		return "", false
	}
	matchers := fmt.Sprintf(`namespace="%s", pod=~"%s", container="%s", reason="OOMKilled"%s`,
		slot.Namespace, slot.PodRegex(), slot.Container, b.label.matcher())
	limitMatchers := fmt.Sprintf(`namespace="%s", pod=~"%s", container="%s", resource="memory"%s`,
		slot.Namespace, slot.PodRegex(), slot.Container, b.label.matcher())
	return fmt.Sprintf(
		"max_over_time(%s{%s}[%s]) * on(pod, container) group_left() %s{%s}",
		stdOOMReasonMetric, matchers, w.historyString(), stdMemLimitMetric, limitMatchers,
	), true
}

func (b *standardBuilder) PodOwners(kind OwnerKind, namespace string, ownerNames []string, w Window) (string, bool) {
	metric, ownerKindLabel := ownerMetricFor(kind)
	if metric == "" {
		return "", false
	}
	if ownerKindLabel == "" {
		return fmt.Sprintf(
			`last_over_time(%s{namespace="%s", owner_name=~"%s"%s}[%s])`,
			metric, namespace, joinRegex(ownerNames), b.label.matcher(), w.historyString(),
		), true
	}
	return fmt.Sprintf(
		`last_over_time(%s{namespace="%s", owner_name=~"%s", owner_kind="%s"%s}[%s])`,
		metric, namespace, joinRegex(ownerNames), ownerKindLabel, b.label.matcher(), w.historyString(),
	), true
}

func (b *standardBuilder) PodLiveness(namespace string, pods []string) (string, bool) {
	return fmt.Sprintf(
		`%s{namespace="%s", pod=~"%s", phase="Running"%s} == 1`,
		stdPhaseMetric, namespace, joinRegex(pods), b.label.matcher(),
	), true
}

func ownerMetricFor(kind OwnerKind) (metric, ownerKind string) {
	switch kind {
	case ReplicaSetOwner:
		return "kube_replicaset_owner", "Deployment"
	case ReplicationControllerOwner:
		return "kube_replicationcontroller_owner", "DeploymentConfig"
	case JobOwner:
		return "kube_job_owner", "CronJob"
	case PodOwner:
		return "kube_pod_owner", ""
	default:
		return "", ""
	}
}

func joinRegex(names []string) string {
	if len(names) == 0 {
		return ".*"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "|" + n
	}
	return out
}
