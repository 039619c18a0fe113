package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrinterMetrics records kitchen printer activity.
type PrinterMetrics struct {
	attempts  *prometheus.CounterVec
	duration  prometheus.Histogram
	connected prometheus.Gauge
}

// NewPrinterMetrics registers the printer metrics on the provided registerer.
func NewPrinterMetrics(reg prometheus.Registerer) *PrinterMetrics {
	if reg == nil {
		return &PrinterMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kot_print_attempts_total",
		Help: "Print attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kot_print_duration_seconds",
		Help:    "Time spent connecting to and writing a ticket to the printer.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kot_printer_connected",
		Help: "1 when the printer session holds an open connection.",
	})
	reg.MustRegister(attempts, duration, connected)
	return &PrinterMetrics{
		attempts:  attempts,
		duration:  duration,
		connected: connected,
	}
}

// ObservePrint records one print attempt.
func (p *PrinterMetrics) ObservePrint(outcome string, elapsed time.Duration) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
	p.duration.Observe(elapsed.Seconds())
}

// SetConnected flips the connection gauge.
func (p *PrinterMetrics) SetConnected(connected bool) {
	if p == nil || p.connected == nil {
		return
	}
	if connected {
		p.connected.Set(1)
		return
	}
	p.connected.Set(0)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
