// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts attendance scans by track, resulting action and outcome code.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Name:      "attendance_scans_total",
		Help:      "Attendance scans by track, action and result.",
	}, []string{"track", "action", "result"})

	// Notifications counts guardian notification state transitions.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Name:      "notifications_total",
		Help:      "Guardian notifications by resulting status.",
	}, []string{"status"})

	// ScheduleConflicts counts rejected timetable writes by conflicting axis.
	ScheduleConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Name:      "schedule_conflicts_total",
		Help:      "Timetable writes rejected by overlap, by axis.",
	}, []string{"axis"})

	// DeliveryDuration observes outbound messaging latency.
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "absensi",
		Name:      "notification_delivery_seconds",
		Help:      "Latency of outbound notification delivery attempts.",
		Buckets:   prometheus.DefBuckets,
	})
)
