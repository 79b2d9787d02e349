package metricsvc

import (
	"context"

	"golang.org/x/time/rate"
)

// newBackendLimiter returns a token-bucket limiter approximating a backend's
// requests-per-minute ceiling, e.g. GCP Managed Prometheus's practical ~180
// req/min (spec.md §5). A non-positive reqPerMinute disables limiting.
func newBackendLimiter(reqPerMinute int) *rate.Limiter {
	if reqPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := reqPerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(reqPerMinute)/60.0), burst)
}

// waitForSlot blocks until the limiter admits one more request or ctx is
// cancelled. It is the only suspension point besides the HTTP round trip
// itself, so it never holds a lock.
func waitForSlot(ctx context.Context, limiter *rate.Limiter) error {
	return limiter.Wait(ctx)
}
