// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"github.com/hashicorp/cap-sso-demo/authstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of the Check button.
const (
	checkOK            = "ok"
	checkRefreshFailed = "refresh_failed"
	checkMissingToken  = "missing_token"
	checkStatus        = "status"
	checkError         = "error"
)

// Metrics records what the demo's browser sessions go through.
type Metrics struct {
	Bootstraps *prometheus.CounterVec
	Checks     *prometheus.CounterVec
	Sessions   prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bootstraps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cap_sso_demo_bootstraps_total",
			Help: "Initialized auth states by outcome (authenticated, unauthenticated, failed)",
		}, []string{"outcome"}),
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cap_sso_demo_checks_total",
			Help: "Authenticated API calls by outcome",
		}, []string{"outcome"}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "cap_sso_demo_sessions",
			Help: "Live browser sessions",
		}),
	}
}

// ObserveState records an initialized State.  It's subscribed to every
// mount's Publisher.
func (m *Metrics) ObserveState(s authstate.State) {
	if !s.Initialized {
		return
	}
	switch {
	case s.Handle == nil:
		m.Bootstraps.WithLabelValues("failed").Inc()
	case s.Authenticated:
		m.Bootstraps.WithLabelValues("authenticated").Inc()
	default:
		m.Bootstraps.WithLabelValues("unauthenticated").Inc()
	}
}

// ObserveCheck records the outcome of a Check.
func (m *Metrics) ObserveCheck(outcome string) {
	m.Checks.WithLabelValues(outcome).Inc()
}
