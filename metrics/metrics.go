package metrics

import (
  "time"

  "github.com/prometheus/client_golang/prometheus"
)

var (
  DevicesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_devices_discovered_total",
    Help: "Device appeared events received from the adapter.",
  })

  DevicesMatched = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_devices_matched_total",
    Help: "Discovered devices advertising the target service.",
  })

  SessionsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_sessions_skipped_total",
    Help: "Matching devices skipped because a session was already running for them.",
  })

  sessionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "proximity_scanner_sessions_total",
    Help: "Finished sessions by outcome and stage.",
  }, []string{"outcome", "stage"})

  sessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
    Name: "proximity_scanner_session_duration_seconds",
    Help: "Time from connect to disconnect.",
    Buckets: []float64{.25, .5, 1, 2, 3, 5, 8, 13, 21},
  }, []string{"outcome"})

  descSessionsInFlight = prometheus.NewDesc(
    "proximity_scanner_sessions_in_flight",
    "Sessions currently running.",
    nil,
    nil,
  )
)

func ObserveSession(outcome, stage string, d time.Duration) {
  sessionsCounter.WithLabelValues(outcome, stage).Inc()
  sessionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

type InFlightFunc func() int

type collector struct {
  InFlightFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  ch <- prometheus.MustNewConstMetric(
    descSessionsInFlight,
    prometheus.GaugeValue,
    float64(c.InFlightFunc()),
  )
}

// Register adds the scanner metrics to reg. f is sampled on every scrape.
func Register(f InFlightFunc, reg prometheus.Registerer) {
  reg.MustRegister(
    DevicesDiscovered,
    DevicesMatched,
    SessionsSkipped,
    sessionsCounter,
    sessionDuration,
    &collector{f},
  )
}
