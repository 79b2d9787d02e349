package rslog

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		"warn":    WARN,
		"warning": WARN,
		"error":   ERROR,
		"info":    INFO,
		"bogus":   INFO,
		"":        INFO,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	l := New(WARN, "test")
	if l.level <= DEBUG {
		t.Fatalf("expected WARN logger to filter DEBUG")
	}
	// Debug/Info must not panic even though they're filtered out.
	l.Debug("should not print")
	l.Info("should not print either")
	l.Warn("visible")
	l.Error("visible")
}

func TestWithPrefix(t *testing.T) {
	l := New(INFO, "")
	p := l.WithPrefix("cluster-a")
	if p.prefix != "cluster-a" {
		t.Fatalf("expected prefix to be set, got %q", p.prefix)
	}
	if l.prefix != "" {
		t.Fatalf("original logger prefix must be unchanged, got %q", l.prefix)
	}
}

// TestLoggerOutputsLevelAndPrefix exercises the multi-field Logger.log output
// (timestamp + level tag + prefix + message) where testify's assert reads
// more plainly than a chain of strings.Contains checks.
func TestLoggerOutputsLevelAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: DEBUG, prefix: "cluster-a", out: log.New(&buf, "", 0)}

	l.Warn("pod %s missing metrics", "web-1")

	output := buf.String()
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "[cluster-a]")
	assert.Contains(t, output, "pod web-1 missing metrics")
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: ERROR, out: log.New(&buf, "", 0)}

	l.Debug("should not appear")
	l.Info("should not appear")
	l.Warn("should not appear")
	l.Error("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should not appear")
	assert.Contains(t, output, "should appear")
}
