package rsconfig

import (
	"os"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HISTORY_DURATION_HOURS", "POINTS_REQUIRED", "MAX_WORKERS",
		"PROMETHEUS_DIALECT_OVERRIDE", "ALLOW_HPA", "USE_OOMKILL_DATA",
	} {
		os.Unsetenv(key)
	}

	c := NewConfig()
	if c.HistoryDurationHours != 336 {
		t.Errorf("HistoryDurationHours = %v, want 336", c.HistoryDurationHours)
	}
	if c.PointsRequired != 100 {
		t.Errorf("PointsRequired = %v, want 100", c.PointsRequired)
	}
	if c.MaxWorkers != 10 {
		t.Errorf("MaxWorkers = %v, want 10", c.MaxWorkers)
	}
	if c.AllowHPA {
		t.Errorf("AllowHPA default should be false")
	}
	if !c.UseOOMKillData {
		t.Errorf("UseOOMKillData default should be true")
	}
	if c.PrometheusDialectOverride != DialectAuto {
		t.Errorf("PrometheusDialectOverride default should be auto, got %q", c.PrometheusDialectOverride)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestHistoryWindowAndStep(t *testing.T) {
	c := NewConfig()
	c.HistoryDurationHours = 1
	c.TimeframeDurationMinutes = 30
	if c.HistoryWindow() != time.Hour {
		t.Errorf("HistoryWindow() = %v, want 1h", c.HistoryWindow())
	}
	if c.Step() != 30*time.Minute {
		t.Errorf("Step() = %v, want 30m", c.Step())
	}
}

func TestValidateRejectsBadPercentiles(t *testing.T) {
	c := NewConfig()
	c.RequestPercentile = 99
	c.LimitPercentile = 96
	if err := c.Validate(); err == nil {
		t.Errorf("expected error when request percentile exceeds limit percentile")
	}
}

func TestValidateRejectsUnknownDialect(t *testing.T) {
	c := NewConfig()
	c.PrometheusDialectOverride = "made-up"
	if err := c.Validate(); err == nil {
		t.Errorf("expected error for unrecognized dialect override")
	}
}

func TestGetEnvOverrides(t *testing.T) {
	os.Setenv("MAX_WORKERS", "42")
	defer os.Unsetenv("MAX_WORKERS")
	c := NewConfig()
	if c.MaxWorkers != 42 {
		t.Errorf("MaxWorkers = %v, want 42 from env override", c.MaxWorkers)
	}
}
