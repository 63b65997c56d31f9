package metrics

import (
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
  reg := prometheus.NewPedanticRegistry()

  Register(func() int { return 3 }, reg)
  ObserveSession("timeout", "link-up", 5 * time.Second)

  families, err := reg.Gather()
  require.NoError(t, err)

  values := make(map[string]float64)

  for _, f := range families {
    for _, m := range f.GetMetric() {
      switch {
      case m.GetGauge() != nil:
        values[f.GetName()] = m.GetGauge().GetValue()
      case m.GetCounter() != nil:
        values[f.GetName()] += m.GetCounter().GetValue()
      case m.GetHistogram() != nil:
        values[f.GetName()] = float64(m.GetHistogram().GetSampleCount())
      }
    }
  }

  assert.Equal(t, 3.0, values["proximity_scanner_sessions_in_flight"])
  assert.Equal(t, 1.0, values["proximity_scanner_sessions_total"])
  assert.Equal(t, 1.0, values["proximity_scanner_session_duration_seconds"])
}
