// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_absence_timers_active",
		Help: "Number of live per-person absence timers.",
	})

	Expiries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_absence_expiries_total",
		Help: "Absence timer expiries by outcome.",
	}, []string{"outcome"})

	CycleTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_day_cycle_ticks_total",
		Help: "Day cycle rollovers performed.",
	})

	CycleDay = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_day_cycle_day",
		Help: "Sequential number of the running day cycle.",
	})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_total",
		Help: "Check-in attempts by result.",
	}, []string{"result"})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_notifications_published_total",
		Help: "Notification queue publishes by result.",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
)
