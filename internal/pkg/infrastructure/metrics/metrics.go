package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ReadingsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gasdetector_readings_accepted_total",
			Help: "Total number of telemetry readings accepted into history",
		},
		[]string{"serial"},
	)

	ReadingsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gasdetector_readings_discarded_total",
			Help: "Total number of telemetry readings discarded before display",
		},
		[]string{"serial", "reason"},
	)

	IndicatorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gasdetector_indicator_state",
			Help: "Current indicator state per device (0 offline, 1 ok, 2 alarm)",
		},
		[]string{"serial"},
	)

	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gasdetector_sessions_open",
			Help: "Number of open monitoring sessions",
		},
	)

	ThresholdRefreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gasdetector_threshold_refresh_failures_total",
			Help: "Total number of failed threshold fetches from the configuration api",
		},
	)

	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gasdetector_stream_reconnects_total",
			Help: "Total number of push stream reconnect attempts",
		},
	)
)

func init() {
	prometheus.MustRegister(ReadingsAccepted)
	prometheus.MustRegister(ReadingsDiscarded)
	prometheus.MustRegister(IndicatorState)
	prometheus.MustRegister(SessionsOpen)
	prometheus.MustRegister(ThresholdRefreshFailures)
	prometheus.MustRegister(StreamReconnects)
}
