// Package metricsvc executes PromQL built by pkg/dialect against a
// Prometheus-compatible backend: range and instant queries, transparent
// range-splitting on truncation, retry with backoff, and a per-backend rate
// limiter (C2 in the component design).
package metricsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"golang.org/x/time/rate"

	"github.com/costlens/rightsizer/internal/rslog"
)

// Service executes queries against one Prometheus-compatible backend.
type Service struct {
	api     v1.API
	limiter *rate.Limiter
	retry   RetryConfig
	timeout time.Duration
	log     *rslog.Logger
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithRequestTimeout sets the per-call timeout applied to every query.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRateLimit sets the backend's requests-per-minute ceiling.
func WithRateLimit(reqPerMinute int) Option {
	return func(s *Service) { s.limiter = newBackendLimiter(reqPerMinute) }
}

// WithLogger overrides the package logger, e.g. to tag lines per cluster.
func WithLogger(l *rslog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService wraps an already-authenticated v1.API handle. The core never
// constructs this client itself (spec.md §6): the caller injects it.
func NewService(api v1.API, opts ...Option) *Service {
	s := &Service{
		api:     api,
		limiter: newBackendLimiter(180),
		retry:   DefaultRetryConfig(),
		timeout: 60 * time.Second,
		log:     rslog.Global,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// minSplitWindow bounds recursive range-splitting: below this window a
// split attempt that still fails is surfaced rather than split further.
const minSplitWindow = 5 * time.Minute

// RangeQuery executes q over [start, end] at the given step. If the backend
// truncates or rejects the range by size, the window is transparently split
// in half and each half retried; results are merged by (pod, container). A
// split fails fast if either half returns a non-retryable error.
func (s *Service) RangeQuery(ctx context.Context, q string, start, end time.Time, step time.Duration) ([]Series, error) {
	series, err := s.rangeQueryOnce(ctx, q, start, end, step)
	if err == nil {
		return filterDuplicateJobs(series), nil
	}
	if !isRangeTooLarge(err) || end.Sub(start) <= minSplitWindow {
		return nil, err
	}

	mid := start.Add(end.Sub(start) / 2)
	s.log.Debug("range query truncated, splitting [%s,%s] at %s", start, end, mid)

	left, lerr := s.RangeQuery(ctx, q, start, mid, step)
	if lerr != nil {
		return nil, fmt.Errorf("range split (first half) failed: %w", lerr)
	}
	right, rerr := s.RangeQuery(ctx, q, mid, end, step)
	if rerr != nil {
		return nil, fmt.Errorf("range split (second half) failed: %w", rerr)
	}
	return filterDuplicateJobs(mergeSeries(left, right)), nil
}

func (s *Service) rangeQueryOnce(ctx context.Context, q string, start, end time.Time, step time.Duration) ([]Series, error) {
	var result model.Value
	err := doWithRetry(ctx, s.retry, func(ctx context.Context) error {
		if err := waitForSlot(ctx, s.limiter); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		v, warnings, err := s.api.QueryRange(callCtx, q, v1.Range{Start: start, End: end, Step: step})
		if len(warnings) > 0 {
			s.log.Warn("prometheus range query warnings: %v", warnings)
		}
		if err != nil {
			return classifyPrometheusError(err)
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for range query", result)
	}
	return seriesFromMatrix(matrix), nil
}

// InstantQuery executes q at a single instant.
func (s *Service) InstantQuery(ctx context.Context, q string, at time.Time) ([]Series, error) {
	var result model.Value
	err := doWithRetry(ctx, s.retry, func(ctx context.Context) error {
		if err := waitForSlot(ctx, s.limiter); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		v, warnings, err := s.api.Query(callCtx, q, at)
		if len(warnings) > 0 {
			s.log.Warn("prometheus instant query warnings: %v", warnings)
		}
		if err != nil {
			return classifyPrometheusError(err)
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("instant query failed: %w", err)
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for instant query", result)
	}
	return filterDuplicateJobs(seriesFromVector(vector)), nil
}

// QueryVector executes an instant query and returns the raw model.Vector
// with every label intact. Discovery queries (kube_pod_owner,
// kube_replicaset_owner, ...) key on labels metric queries don't use
// (owner_name, owner_kind, replicaset, ...), so they bypass the
// pod/container normalization InstantQuery applies.
func (s *Service) QueryVector(ctx context.Context, q string, at time.Time) (model.Vector, error) {
	var result model.Value
	err := doWithRetry(ctx, s.retry, func(ctx context.Context) error {
		if err := waitForSlot(ctx, s.limiter); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		v, warnings, err := s.api.Query(callCtx, q, at)
		if len(warnings) > 0 {
			s.log.Warn("prometheus discovery query warnings: %v", warnings)
		}
		if err != nil {
			return classifyPrometheusError(err)
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery query failed: %w", err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for discovery query", result)
	}
	return vector, nil
}

// isRangeTooLarge recognizes the backend's "range too large"/truncation
// failure modes that warrant a split-and-retry rather than surfacing the
// error directly.
func isRangeTooLarge(err error) bool {
	msg := strings.ToLower(err.Error())
	markers := []string{"too many points", "exceeded maximum resolution", "query result too large", "range query resulted in too many"}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
