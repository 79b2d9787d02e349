package dialect

// SupportsPodDiscovery reports whether a dialect has kube-state-metrics
// equivalents for owner/liveness discovery queries. Standard does; GCP
// Managed Prometheus and Anthos do not (spec.md §4.1).
func SupportsPodDiscovery(d Dialect) bool {
	return d == Standard
}

// Query dispatches to the Builder method for the given metric Kind. It
// exists so C2 can build the required query list from a Strategy's
// RequiredMetricKinds() without a type switch at every call site.
func Query(b Builder, kind Kind, slot Slot, w Window, percentile float64, useOOMKillData bool) (query string, ok bool) {
	switch kind {
	case CPUUsage:
		return b.CPUUsage(slot, w), true
	case PercentileCPU:
		return b.PercentileCPU(slot, w, percentile), true
	case CPUPoints:
		return b.CPUPoints(slot, w), true
	case Memory:
		return b.Memory(slot, w), true
	case MaxMemory:
		return b.MaxMemory(slot, w), true
	case MemoryPoints:
		return b.MemoryPoints(slot, w), true
	case OOMKilledMemory:
		return b.OOMKilledMemory(slot, w, useOOMKillData)
	default:
		return "", false
	}
}
