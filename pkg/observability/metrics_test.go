package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}

func TestRecorders(t *testing.T) {
	SetLocalSlabs("metrics-test", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(localSlabs.WithLabelValues("metrics-test")))
	SetLocalSlabs("metrics-test", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(localSlabs.WithLabelValues("metrics-test")))

	AddContexts("metrics-test", 2)
	AddContexts("metrics-test", -1)
	assert.Equal(t, 1.0, testutil.ToFloat64(contexts.WithLabelValues("metrics-test")))

	RecordSend("metrics-test", "blackhole", nil)
	RecordSend("metrics-test", "blackhole", nil)
	RecordSend("metrics-test", "udp", errors.New("boom"))
	assert.Equal(t, 2.0, testutil.ToFloat64(packetsSent.WithLabelValues("metrics-test", "blackhole", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(packetsSent.WithLabelValues("metrics-test", "udp", "error")))

	RecordDeliver("metrics-test", "memo")
	assert.Equal(t, 1.0, testutil.ToFloat64(packetsDelivered.WithLabelValues("metrics-test", "memo")))
}
