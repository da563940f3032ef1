// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sistemapos/posadmin/internal/auth"
)

// Metrics holds the posadmin counters. It implements auth.Recorder.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	SessionProbes *prometheus.CounterVec
	Logouts       prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates the posadmin counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posadmin_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		SessionProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posadmin_session_probes_total",
				Help: "Session validations by result",
			},
			[]string{"result"},
		),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posadmin_logouts_total",
			Help: "Logout requests",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posadmin_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}
	reg.MustRegister(m.LoginAttempts, m.SessionProbes, m.Logouts, m.HTTPRequests)
	return m
}

// LoginAttempt implements auth.Recorder.
func (m *Metrics) LoginAttempt(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// SessionProbe implements auth.Recorder.
func (m *Metrics) SessionProbe(result string) {
	m.SessionProbes.WithLabelValues(result).Inc()
}

// Logout implements auth.Recorder.
func (m *Metrics) Logout() {
	m.Logouts.Inc()
}

// HTTPRequest counts one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

var _ auth.Recorder = (*Metrics)(nil)
