package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDefault_Singleton(t *testing.T) {
	m1 := Default()
	m2 := Default()
	assert.Same(t, m1, m2)
}

func TestRecorders(t *testing.T) {
	m := Default()

	before := testutil.ToFloat64(m.EntriesCollected.WithLabelValues("console"))
	m.RecordCollected("console")
	assert.Equal(t, before+1, testutil.ToFloat64(m.EntriesCollected.WithLabelValues("console")))

	before = testutil.ToFloat64(m.Reconnects.WithLabelValues("exhausted"))
	m.RecordReconnect(false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.Reconnects.WithLabelValues("exhausted")))

	before = testutil.ToFloat64(m.EntriesDropped.WithLabelValues("capacity"))
	m.RecordDropped("capacity")
	assert.Equal(t, before+1, testutil.ToFloat64(m.EntriesDropped.WithLabelValues("capacity")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCollected("network")
		m.RecordSuppressed("X")
		m.RecordDropped("decode")
		m.RecordReconnect(true)
		m.RecordRetry("open")
		m.ObserveConnect(0.1)
	})
}
