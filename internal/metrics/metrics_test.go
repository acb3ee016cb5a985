package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetOnlineUsers(3)
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.MessageSent("sent")
		m.StatusTransitions("seen", 2)
		m.Fanout(1, 1)
	})
	assert.NotNil(t, m.Handler())
}

func TestCollectors(t *testing.T) {
	m := New()

	m.SetOnlineUsers(2)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.MessageSent("delivered")
	m.StatusTransitions("seen", 3)
	m.StatusTransitions("seen", 0)
	m.Fanout(4, 1)

	assert.InDelta(t, 2, testutil.ToFloat64(m.onlineUsers), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.messagesSent.WithLabelValues("delivered")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.transitions.WithLabelValues("seen")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.deliveries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skipped), 0)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.MessageSent("sent")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `duochat_messages_sent_total{status="sent"} 1`)
}
