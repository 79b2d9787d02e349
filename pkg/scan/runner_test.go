package scan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/discovery"
	"github.com/costlens/rightsizer/pkg/metricsvc"
	"github.com/costlens/rightsizer/pkg/rsconfig"
	"github.com/costlens/rightsizer/pkg/strategy"
)

// fakeAPI implements v1.API, answering every instant query with a canonical
// value that depends on which over_time function the query text uses, so a
// Simple strategy's points_required/percentile/max lookups each see a
// plausible reading without a real Prometheus backend.
type fakeAPI struct {
	v1.API
}

func (f *fakeAPI) Query(_ context.Context, query string, _ time.Time, _ ...v1.Option) (model.Value, v1.Warnings, error) {
	value := 0.2
	switch {
	case strings.Contains(query, "count_over_time"):
		value = 50
	case strings.Contains(query, "max_over_time"):
		value = 700 * 1024 * 1024
	}
	return model.Vector{&model.Sample{
		Metric:    model.Metric{"pod": "web-1", "container": "app"},
		Value:     model.SampleValue(value),
		Timestamp: model.TimeFromUnix(1000),
	}}, nil, nil
}

func healthyCluster(name string) *discovery.Cluster {
	dep := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "web"}},
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
			},
		},
	}
	rs := appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name: "web-abc123", Namespace: "default",
			OwnerReferences: []metav1.OwnerReference{{Name: "web", Kind: "Deployment"}},
		},
	}
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-abc123-xyz", Namespace: "default", Labels: map[string]string{"app": "web"}},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	kube := fake.NewSimpleClientset(&dep, &rs, &pod)
	return clusterWith(name, kube)
}

// noPodsCluster has a Deployment whose selector matches nothing, exercising
// the "0 known pods" invariant.
func noPodsCluster(name string) *discovery.Cluster {
	dep := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "orphan", Namespace: "default"},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "orphan"}},
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
			},
		},
	}
	kube := fake.NewSimpleClientset(&dep)
	return clusterWith(name, kube)
}

// forbiddenCluster's Deployments list returns a 403, the per-cluster fatal
// error path from seed scenario 6.
func forbiddenCluster(name string) *discovery.Cluster {
	kube := fake.NewSimpleClientset()
	kube.PrependReactor("list", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("deployments.apps is forbidden: User cannot list resource")
	})
	return clusterWith(name, kube)
}

func clusterWith(name string, kube *fake.Clientset) *discovery.Cluster {
	svc := metricsvc.NewService(&fakeAPI{}, metricsvc.WithRateLimit(0), metricsvc.WithRetryConfig(metricsvc.RetryConfig{MaxAttempts: 1}))
	return &discovery.Cluster{
		Name:        name,
		KubeClient:  kube,
		PromService: svc,
		Builder:     dialect.New(dialect.Standard, dialect.ClusterLabel{}),
		Window:      dialect.Window{History: time.Hour, Step: 75 * time.Second},
	}
}

func testConfig() *rsconfig.Config {
	return &rsconfig.Config{
		MaxWorkers:       4,
		PointsRequired:   5,
		CPUMinMillicores: 10,
		MemoryMinMiB:     100,
		UseOOMKillData:   true,
		AllowHPA:         true,
	}
}

func TestRunnerHealthyClusterProducesRecommendation(t *testing.T) {
	cluster := healthyCluster("c1")
	r := NewRunner(testConfig(), strategy.NewSimple(), []*discovery.Cluster{cluster}, discovery.Filter{Kinds: []discovery.Kind{discovery.Deployment}})

	results, errs := r.Run(context.Background())
	if len(errs) != 0 {
		t.Fatalf("expected no fatal errors, got %v", errs)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d: %+v", len(results), results)
	}
	res := results[0]
	if res.Cluster != "c1" || res.Workload != "web" || res.Container != "app" {
		t.Fatalf("unexpected result identity: %+v", res)
	}
	if res.States["cpu"] != strategy.StateOK || res.States["memory"] != strategy.StateOK {
		t.Fatalf("expected ok states, got cpu=%v mem=%v (%v)", res.States["cpu"], res.States["memory"], res.Info)
	}
	if res.ScanID == "" {
		t.Fatalf("expected a non-empty scan id")
	}
}

func TestRunnerZeroPodsWorkloadYieldsUndefinedWithoutMetricFetch(t *testing.T) {
	cluster := noPodsCluster("c1")
	r := NewRunner(testConfig(), strategy.NewSimple(), []*discovery.Cluster{cluster}, discovery.Filter{Kinds: []discovery.Kind{discovery.Deployment}})

	results, errs := r.Run(context.Background())
	if len(errs) != 0 {
		t.Fatalf("expected no fatal errors, got %v", errs)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	res := results[0]
	if res.States["cpu"] != strategy.StateUndefined || res.States["memory"] != strategy.StateUndefined {
		t.Fatalf("expected undefined states for a zero-pod workload, got %+v", res.States)
	}
}

// TestRunnerMultiClusterPartialFailure is seed scenario 6: two clusters, one
// 403s on Deployment discovery. The process must surface that cluster's
// error while still returning the other cluster's results complete.
func TestRunnerMultiClusterPartialFailure(t *testing.T) {
	good := healthyCluster("good-cluster")
	bad := forbiddenCluster("bad-cluster")
	r := NewRunner(testConfig(), strategy.NewSimple(), []*discovery.Cluster{good, bad}, discovery.Filter{Kinds: []discovery.Kind{discovery.Deployment}})

	results, errs := r.Run(context.Background())
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 fatal error for the forbidden cluster, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Error(), "bad-cluster") {
		t.Fatalf("expected the fatal error to name bad-cluster, got %v", errs[0])
	}
	if len(results) != 1 || results[0].Cluster != "good-cluster" {
		t.Fatalf("expected the healthy cluster's result to still be produced, got %+v", results)
	}
}

func TestRunnerRespectsMaxWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1
	cluster := healthyCluster("c1")
	r := NewRunner(cfg, strategy.NewSimple(), []*discovery.Cluster{cluster}, discovery.Filter{Kinds: []discovery.Kind{discovery.Deployment}})

	results, errs := r.Run(context.Background())
	if len(errs) != 0 || len(results) != 1 {
		t.Fatalf("expected the scan to still complete with MaxWorkers=1, got results=%d errs=%v", len(results), errs)
	}
}
