package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckInAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailtag_checkin_attempts_total",
		Help: "Check-in attempts by terminal result.",
	}, []string{"result"})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailtag_sessions_swept_total",
		Help: "Expired sessions removed by the background sweep.",
	})

	SessionSweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailtag_session_sweep_errors_total",
		Help: "Failed session sweep ticks.",
	})
)
