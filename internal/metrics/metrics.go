// Package metrics holds the prometheus collectors of the check-in service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_scans_total",
		Help: "Decoded scans handled by terminals, by outcome",
	}, []string{"outcome"})

	AttendanceRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_attendance_recorded_total",
		Help: "Attendance records inserted, by target type",
	}, []string{"target_type"})

	AttendanceDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_attendance_duplicates_total",
		Help: "Recording attempts absorbed because the record already existed",
	})

	AttendanceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_attendance_errors_total",
		Help: "Per-target recording failures",
	})

	ActiveTerminals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkin_active_terminals",
		Help: "Scan sessions currently open",
	})

	DisplayDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_display_detections_total",
		Help: "Attendance detections seen by participant displays, by channel",
	}, []string{"channel"})

	DisplayConfirmations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_display_confirmations_total",
		Help: "Participant displays that reached the confirmed phase",
	})
)
