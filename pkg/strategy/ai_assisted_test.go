package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

type fakeLLM struct {
	advice *Advice
	err    error
}

func (f *fakeLLM) Recommend(_ context.Context, _ string) (*Advice, error) {
	return f.advice, f.err
}

func aiTestBundle() *metricsvc.Bundle {
	b := &metricsvc.Bundle{Series: map[dialect.Kind][]metricsvc.Series{}, Percentiles: map[float64][]metricsvc.Series{}}
	cpuSamples := []metricsvc.Sample{{Timestamp: 0, Value: 0.1}, {Timestamp: 75, Value: 0.12}, {Timestamp: 150, Value: 0.15}, {Timestamp: 225, Value: 0.2}, {Timestamp: 300, Value: 0.1}}
	memSamples := []metricsvc.Sample{{Timestamp: 0, Value: 500 * mib}, {Timestamp: 75, Value: 600 * mib}, {Timestamp: 150, Value: 700 * mib}, {Timestamp: 225, Value: 500 * mib}, {Timestamp: 300, Value: 500 * mib}}
	b.Series[dialect.CPUUsage] = []metricsvc.Series{{Pod: "p1", Samples: cpuSamples}}
	b.Series[dialect.Memory] = []metricsvc.Series{{Pod: "p1", Samples: memSamples}}
	b.Series[dialect.CPUPoints] = pointCountSeries(5)
	b.Series[dialect.MemoryPoints] = pointCountSeries(5)
	b.Series[dialect.MaxMemory] = []metricsvc.Series{scalarSeries("p1", 700*mib)}
	b.Series[dialect.OOMKilledMemory] = []metricsvc.Series{scalarSeries("p1", 0)}
	b.Percentiles[95] = []metricsvc.Series{scalarSeries("p1", 0.2)}
	return b
}

func TestAIAssistedHappyPath(t *testing.T) {
	client := &fakeLLM{advice: &Advice{CPURequestCores: 0.22, MemRequestBytes: 820 * mib, ConfidencePct: 80, Reasoning: "steady load"}}
	s := NewAIAssisted(client)
	ctx := baseContext()

	result := s.Recommend(aiTestBundle(), ctx)
	if result.States["cpu"] != StateOK {
		t.Fatalf("expected ok state for a reasonable AI answer, got %v (%s)", result.States["cpu"], result.Info["cpu"])
	}
	if *result.Recommendation.CPURequestMillicores != 220 {
		t.Fatalf("expected cpu_request=220m, got %v", *result.Recommendation.CPURequestMillicores)
	}
}

func TestAIAssistedClampsOutOfRangeAnswer(t *testing.T) {
	client := &fakeLLM{advice: &Advice{CPURequestCores: 50, MemRequestBytes: 820 * mib, ConfidencePct: 60, Reasoning: "overestimated"}}
	s := NewAIAssisted(client)
	ctx := baseContext()

	result := s.Recommend(aiTestBundle(), ctx)
	if result.States["cpu"] != StateClamped {
		t.Fatalf("expected clamped state for an out-of-range answer, got %v", result.States["cpu"])
	}
	if *result.Recommendation.CPURequestMillicores != aiMaxCPUCores*1000 {
		t.Fatalf("expected cpu_request clamped to %v cores, got %v", aiMaxCPUCores, *result.Recommendation.CPURequestMillicores)
	}
}

func TestAIAssistedFlagsLargeDeviationFromSimple(t *testing.T) {
	// Simple baseline at p95=0.2 cores -> 200m; an AI answer of 1 core deviates >50%.
	client := &fakeLLM{advice: &Advice{CPURequestCores: 1.0, MemRequestBytes: 820 * mib, ConfidencePct: 90, Reasoning: "aggressive headroom"}}
	s := NewAIAssisted(client)
	ctx := baseContext()

	result := s.Recommend(aiTestBundle(), ctx)
	if result.States["cpu"] != StateClamped {
		t.Fatalf("expected deviation from Simple baseline to be flagged, got %v", result.States["cpu"])
	}
	// The AI value is still returned, per spec.md's "operator decides" policy.
	if *result.Recommendation.CPURequestMillicores != 1000 {
		t.Fatalf("expected AI value to still be returned despite the deviation warning, got %v", *result.Recommendation.CPURequestMillicores)
	}
}

func TestAIAssistedUndefinedOnClientError(t *testing.T) {
	client := &fakeLLM{err: errors.New("connection reset")}
	s := NewAIAssisted(client)
	ctx := baseContext()

	result := s.Recommend(aiTestBundle(), ctx)
	if result.States["cpu"] != StateUndefined || result.States["memory"] != StateUndefined {
		t.Fatalf("expected undefined recommendation when the LLM call fails, got cpu=%v mem=%v", result.States["cpu"], result.States["memory"])
	}
}
