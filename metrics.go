package smtpd

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics tracks per-command counts, per-response-code counts, TLS
// usage, and AUTH outcomes, on prometheus/client_golang against a private
// registry, so an embedding application can mount it wherever it mounts
// its own metrics instead of fighting over the global registry.
type engineMetrics struct {
	registry *prometheus.Registry

	commandCount      *prometheus.CounterVec
	responseCodeCount *prometheus.CounterVec
	tlsCount          *prometheus.CounterVec
	authResultCount   *prometheus.CounterVec
}

func newEngineMetrics() *engineMetrics {
	reg := prometheus.NewRegistry()

	m := &engineMetrics{
		registry: reg,
		commandCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_command_count",
			Help: "Count of SMTP commands received, by command.",
		}, []string{"command"}),
		responseCodeCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_response_code_count",
			Help: "Count of response codes returned to SMTP commands.",
		}, []string{"code"}),
		tlsCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_tls_count",
			Help: "Count of TLS usage on incoming connections.",
		}, []string{"status"}),
		authResultCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpd_auth_result_count",
			Help: "Count of AUTH outcomes, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.commandCount, m.responseCodeCount, m.tlsCount,
		m.authResultCount)
	return m
}

// Registry returns the Engine's private Prometheus registry, so the
// embedding application can expose it alongside its own metrics.
func (e *Engine) Registry() *prometheus.Registry {
	return e.metrics.registry
}
