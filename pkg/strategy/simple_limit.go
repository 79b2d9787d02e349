package strategy

import (
	"github.com/costlens/rightsizer/pkg/dialect"
	"github.com/costlens/rightsizer/pkg/metricsvc"
)

// SimpleLimit is Simple with the request and limit drawn from two different
// CPU percentiles (spec.md §4.4.2).
type SimpleLimit struct {
	RequestPercentile         float64
	LimitPercentile           float64
	MemoryBufferPercentage    float64
	OOMMemoryBufferPercentage float64
}

// NewSimpleLimit returns a SimpleLimit strategy with spec.md §4.4 defaults.
func NewSimpleLimit() *SimpleLimit {
	return &SimpleLimit{RequestPercentile: 66, LimitPercentile: 96, MemoryBufferPercentage: 15, OOMMemoryBufferPercentage: 25}
}

func (s *SimpleLimit) Name() string { return "simple-limit" }

func (s *SimpleLimit) RequiredMetricKinds() []dialect.Kind {
	return []dialect.Kind{dialect.PercentileCPU, dialect.CPUPoints, dialect.MaxMemory, dialect.MemoryPoints, dialect.OOMKilledMemory}
}

func (s *SimpleLimit) RequiredPercentiles() []float64 {
	return []float64{s.RequestPercentile, s.LimitPercentile}
}

func (s *SimpleLimit) Recommend(bundle *metricsvc.Bundle, ctx Context) Result {
	limit := s.LimitPercentile
	spec := cpuPercentileSpec{request: s.RequestPercentile, limit: &limit}
	return recommendSimple(bundle, ctx, spec, s.MemoryBufferPercentage, s.OOMMemoryBufferPercentage)
}
