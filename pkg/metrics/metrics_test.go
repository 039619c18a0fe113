package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrinterMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrinterMetrics(reg)
	m.ObservePrint("ok", 250*time.Millisecond)
	m.ObservePrint("connect_failed", 5*time.Second)
	m.ObservePrint("", time.Millisecond)
	m.SetConnected(true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for outcome, want := range map[string]float64{"ok": 1, "connect_failed": 1, "unknown": 1} {
		got, err := fetchCounterValue(mfs, "kot_print_attempts_total", map[string]string{"outcome": outcome})
		if err != nil {
			t.Fatalf("fetch %s: %v", outcome, err)
		}
		if got != want {
			t.Fatalf("expected %s=%v, got %v", outcome, want, got)
		}
	}

	mf := findMetricFamily(mfs, "kot_print_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 3 {
		t.Fatalf("expected three duration samples")
	}

	gauge := findMetricFamily(mfs, "kot_printer_connected")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected connected gauge to be 1")
	}
}

func TestRemoteMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRemoteMetrics(reg)
	m.ObserveRequest("orders.get", "ok", 10*time.Millisecond)
	m.ObserveRequest("orders.get", "error", 10*time.Millisecond)
	m.ObserveRequest("orders.get", "ok", 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "kot_remote_requests_total", map[string]string{"operation": "orders.get", "outcome": "ok"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 ok requests, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var p *PrinterMetrics
	p.ObservePrint("ok", time.Second)
	p.SetConnected(false)

	var r *RemoteMetrics
	r.ObserveRequest("x", "ok", time.Second)

	NewPrinterMetrics(nil).ObservePrint("ok", time.Second)
	NewRemoteMetrics(nil).ObserveRequest("x", "ok", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
