package http

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal not initialized")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration not initialized")
	}
	if m.ActiveConnections == nil {
		t.Error("ActiveConnections not initialized")
	}
	if m.ToolCallsTotal == nil {
		t.Error("ToolCallsTotal not initialized")
	}
	if m.ToolCallDuration == nil {
		t.Error("ToolCallDuration not initialized")
	}
	if m.PermissionDenials == nil {
		t.Error("PermissionDenials not initialized")
	}
	if m.QuotaDenialsTotal == nil {
		t.Error("QuotaDenialsTotal not initialized")
	}
	if m.AuditAppendsTotal == nil {
		t.Error("AuditAppendsTotal not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("tools/call", "ok").Inc()
	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tools/call", "ok"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}

	m.ActiveConnections.Set(5)
	if got := testutil.ToFloat64(m.ActiveConnections); got != 5 {
		t.Errorf("ActiveConnections = %v, want 5", got)
	}

	m.ToolCallsTotal.WithLabelValues("read_file", "success").Inc()
	m.ToolCallDuration.WithLabelValues("read_file").Observe(0.1)

	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "tool_call_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("tool_call_duration histogram not found in gathered metrics")
	}
}
