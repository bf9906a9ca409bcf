package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neematajs/neemata-go/transport"
)

type recordingConn struct {
	id       transport.ConnectionID
	received []transport.Frame
	failNext bool
}

func (c *recordingConn) ID() transport.ConnectionID  { return c.id }
func (c *recordingConn) ContentType() string         { return "application/json" }
func (c *recordingConn) Close() error                { return nil }
func (c *recordingConn) Send(f transport.Frame) error {
	if c.failNext {
		return errors.New("buffer full")
	}
	c.received = append(c.received, f)
	return nil
}

func newSubscriberConnection(t *testing.T, id string) (*Connection, *recordingConn) {
	t.Helper()
	raw := &recordingConn{id: transport.ConnectionID(id)}
	root := NewRootContainer(testLogger())
	return NewConnection(raw, root), raw
}

func TestSubscriptionManager_FanOut(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	c1, raw1 := newSubscriberConnection(t, "c1")
	c2, raw2 := newSubscriberConnection(t, "c2")
	c3, raw3 := newSubscriberConnection(t, "c3")

	mgr.Subscribe(c1, "orders", nil)
	mgr.Subscribe(c2, "orders", nil)
	mgr.Subscribe(c3, "orders", nil)

	mgr.Publish("orders", []byte(`{"id":1}`))

	require.Len(t, raw1.received, 1)
	require.Len(t, raw2.received, 1)
	require.Len(t, raw3.received, 1)
}

func TestSubscriptionManager_DisconnectStopsDelivery(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	c1, raw1 := newSubscriberConnection(t, "c1")
	c2, raw2 := newSubscriberConnection(t, "c2")

	mgr.Subscribe(c1, "orders", nil)
	mgr.Subscribe(c2, "orders", nil)

	mgr.OnDisconnection(c2.ID())
	mgr.Publish("orders", []byte("payload"))

	assert.Len(t, raw1.received, 1)
	assert.Len(t, raw2.received, 0)
}

func TestSubscriptionManager_FilterExcludesSubscriber(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	c1, raw1 := newSubscriberConnection(t, "c1")

	mgr.Subscribe(c1, "orders", func(payload []byte) bool { return false })
	mgr.Publish("orders", []byte("payload"))

	assert.Len(t, raw1.received, 0)
}

func TestSubscriptionManager_BackpressureDropsNotUnsubscribes(t *testing.T) {
	mgr := NewMetricsBackedSubscriptionManager(t)
	c1, raw1 := newSubscriberConnection(t, "c1")
	raw1.failNext = true

	mgr.Subscribe(c1, "orders", nil)
	mgr.Publish("orders", []byte("first"))

	raw1.failNext = false
	mgr.Publish("orders", []byte("second"))

	require.Len(t, raw1.received, 1)
	assert.Equal(t, []byte("second"), raw1.received[0].Payload)
}

func TestSubscriptionManager_UnsubscribeRemovesSingleChannel(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	c1, raw1 := newSubscriberConnection(t, "c1")

	mgr.Subscribe(c1, "orders", nil)
	mgr.Subscribe(c1, "alerts", nil)
	mgr.Unsubscribe(c1, "orders")

	mgr.Publish("orders", []byte("x"))
	mgr.Publish("alerts", []byte("y"))

	require.Len(t, raw1.received, 1)
}

func NewMetricsBackedSubscriptionManager(t *testing.T) *SubscriptionManager {
	t.Helper()
	return NewSubscriptionManager(testMetrics(t))
}
