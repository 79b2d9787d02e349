package dialect

import (
	"strings"
	"testing"
	"time"
)

func testWindow() Window {
	return Window{History: 336 * time.Hour, Step: 75 * time.Second}
}

func testSlot() Slot {
	return Slot{Namespace: "default", Pods: []string{"web-abc123", "web-def456"}, Container: "app"}
}

func TestStandardDialectQueryShapes(t *testing.T) {
	b := New(Standard, ClusterLabel{})
	w := testWindow()
	slot := testSlot()

	cpu := b.CPUUsage(slot, w)
	if !strings.Contains(cpu, "container_cpu_usage_seconds_total") {
		t.Errorf("CPUUsage query missing standard metric name: %s", cpu)
	}
	if !strings.Contains(cpu, `namespace="default"`) {
		t.Errorf("CPUUsage query missing namespace matcher: %s", cpu)
	}

	p := b.PercentileCPU(slot, w, 95)
	if !strings.Contains(p, "quantile_over_time(0.95") {
		t.Errorf("PercentileCPU query missing quantile_over_time(0.95: %s", p)
	}

	mm := b.MaxMemory(slot, w)
	if !strings.Contains(mm, "container_memory_working_set_bytes") {
		t.Errorf("MaxMemory query missing standard memory metric: %s", mm)
	}

	oom, ok := b.OOMKilledMemory(slot, w, true)
	if !ok {
		t.Fatalf("expected Standard dialect to support OOMKilledMemory")
	}
	if !strings.Contains(oom, "OOMKilled") {
		t.Errorf("OOM query missing OOMKilled reason matcher: %s", oom)
	}

	if _, ok := b.OOMKilledMemory(slot, w, false); ok {
		t.Errorf("OOMKilledMemory should report unsupported when useOOMKillData is false")
	}

	if _, ok := b.PodOwners(ReplicaSetOwner, "default", []string{"web"}, w); !ok {
		t.Errorf("Standard dialect must support PodOwners discovery")
	}
	if _, ok := b.PodLiveness("default", []string{"web-abc123"}); !ok {
		t.Errorf("Standard dialect must support PodLiveness discovery")
	}
}

// Seed scenario 4: GCP Managed dialect with a cluster label must inject the
// label exactly once, with no double commas, and carry the mandatory
// monitored_resource matcher.
func TestGCPDialectClusterLabelInjection(t *testing.T) {
	label := ClusterLabel{Key: "cluster_name", Value: "prod-1"}
	b := New(GCPManaged, label)
	w := testWindow()
	slot := testSlot()

	for name, q := range map[string]string{
		"CPUUsage":      b.CPUUsage(slot, w),
		"Memory":        b.Memory(slot, w),
		"MaxMemory":     b.MaxMemory(slot, w),
		"MemoryPoints":  b.MemoryPoints(slot, w),
		"PercentileCPU": b.PercentileCPU(slot, w, 95),
	} {
		literal := `, "cluster_name"="prod-1"`
		count := strings.Count(q, literal)
		if count != 1 {
			t.Errorf("%s: expected cluster label literal exactly once, got %d in: %s", name, count, q)
		}
		if strings.Contains(q, ",,") {
			t.Errorf("%s: query has a double comma: %s", name, q)
		}
		if !strings.Contains(q, `"monitored_resource"="k8s_container"`) {
			t.Errorf("%s: missing mandatory monitored_resource matcher: %s", name, q)
		}
	}
}

func TestGCPDialectNormalizesLabelsViaLabelReplace(t *testing.T) {
	b := New(GCPManaged, ClusterLabel{})
	q := b.CPUUsage(testSlot(), testWindow())
	if !strings.Contains(q, `label_replace(`) {
		t.Errorf("expected GCP query to be wrapped in label_replace: %s", q)
	}
	if !strings.Contains(q, `"pod", "$1", "pod_name"`) {
		t.Errorf("expected pod_name normalization: %s", q)
	}
	if !strings.Contains(q, `"container", "$1", "container_name"`) {
		t.Errorf("expected container_name normalization: %s", q)
	}
}

func TestGCPDialectHasNoPodDiscovery(t *testing.T) {
	b := New(GCPManaged, ClusterLabel{})
	if _, ok := b.PodOwners(ReplicaSetOwner, "default", []string{"web"}, testWindow()); ok {
		t.Errorf("GCP dialect must not support kube-state-metrics style owner discovery")
	}
	if _, ok := b.PodLiveness("default", []string{"web-abc123"}); ok {
		t.Errorf("GCP dialect must not support PodLiveness discovery")
	}
}

func TestAnthosDialectUsesAnthosPrefix(t *testing.T) {
	b := New(Anthos, ClusterLabel{})
	q := b.Memory(testSlot(), testWindow())
	if !strings.Contains(q, "kubernetes.io/anthos/container/memory/used_bytes") {
		t.Errorf("expected anthos-prefixed metric name: %s", q)
	}
	if b.Dialect() != Anthos {
		t.Errorf("Dialect() = %v, want Anthos", b.Dialect())
	}
}

func TestAnthosOOMInference(t *testing.T) {
	b := New(Anthos, ClusterLabel{})
	q, ok := b.OOMKilledMemory(testSlot(), testWindow(), true)
	if !ok {
		t.Fatalf("expected Anthos OOM inference to be supported when useOOMKillData is true")
	}
	if !strings.Contains(q, "restart_count") || !strings.Contains(q, "limit_bytes") {
		t.Errorf("expected OOM inference query to reference both limit_bytes and restart_count: %s", q)
	}
	if !strings.Contains(q, "group_left()") {
		t.Errorf("expected OOM inference join via group_left(): %s", q)
	}
}

func TestDetectDialect(t *testing.T) {
	cases := []struct {
		url     string
		anthos  bool
		want    Dialect
	}{
		{"http://prometheus.default.svc:9090", false, Standard},
		{"https://monitoring.googleapis.com/v1/projects/p/location/global/prometheus", false, GCPManaged},
		{"https://monitoring.googleapis.com/v1/projects/p/location/global/prometheus", true, Anthos},
	}
	for _, c := range cases {
		if got := DetectDialect(c.url, c.anthos); got != c.want {
			t.Errorf("DetectDialect(%q, %v) = %v, want %v", c.url, c.anthos, got, c.want)
		}
	}
}

func TestPodRegexEmptyMatchesAll(t *testing.T) {
	s := Slot{}
	if s.PodRegex() != ".*" {
		t.Errorf("expected empty pod list to render as .*, got %q", s.PodRegex())
	}
}

func TestClusterLabelEmptyProducesNoMatcher(t *testing.T) {
	var c ClusterLabel
	if c.matcher() != "" {
		t.Errorf("expected empty cluster label to produce no matcher fragment, got %q", c.matcher())
	}
}
