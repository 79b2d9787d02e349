package discovery

import (
	"context"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// attachHPA discovers any HorizontalPodAutoscaler targeting the workload
// and, when allow_hpa is false, marks the workload with a warning so the
// Strategy later treats the targeted resource(s) as ineligible (spec.md
// §4.3 step 4).
func (d *Discoverer) attachHPA(ctx context.Context, c *Cluster, w *Workload) {
	list, err := c.KubeClient.AutoscalingV2().HorizontalPodAutoscalers(w.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		w.warn("HPA lookup failed: %v", err)
		return
	}

	for _, hpa := range list.Items {
		ref := hpa.Spec.ScaleTargetRef
		if ref.Name != w.Name || !kindMatches(ref.Kind, w.Kind) {
			continue
		}
		desc := &HPADescriptor{Name: hpa.Name}
		if hpa.Spec.MinReplicas != nil {
			desc.MinReplicas = *hpa.Spec.MinReplicas
		}
		desc.MaxReplicas = hpa.Spec.MaxReplicas
		for _, m := range hpa.Spec.Metrics {
			if m.Type != autoscalingv2.ResourceMetricSourceType || m.Resource == nil {
				continue
			}
			switch m.Resource.Name {
			case "cpu":
				desc.TargetsCPU = true
			case "memory":
				desc.TargetsMemory = true
			}
		}
		w.HPA = desc
		if !d.allowHPA {
			w.warn("workload is targeted by HPA %q; allow_hpa=false makes targeted resources ineligible", hpa.Name)
		}
		return
	}
}

func kindMatches(refKind string, k Kind) bool {
	return refKind == k.String()
}
