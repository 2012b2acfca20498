package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Request("GET", 200, 10*time.Millisecond)
	m.Request("GET", 0, time.Millisecond)
	m.Refresh("ok")
	m.Refresh("ok")
	m.PushEvent("chat", "applied")
	m.PushEvent("chat", "duplicate")
	m.SnapshotLoad("notifications", "failed")
	m.Reconnect()

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "error")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.refresh.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.pushEvents.WithLabelValues("chat", "duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.snapshotLoads.WithLabelValues("notifications", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))

	n, err := testutil.GatherAndCount(reg, "forum_client_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.Request("GET", 200, time.Second)
		m.Refresh("failed")
		m.PushEvent("chat", "applied")
		m.SnapshotLoad("chat", "ok")
		m.Reconnect()
	})
}
