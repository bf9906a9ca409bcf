package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
	"github.com/neematajs/neemata-go/internal/jsoncodec"
	"github.com/neematajs/neemata-go/internal/worker/format"
	"github.com/neematajs/neemata-go/transport"
)

type fakeConn struct {
	id          transport.ConnectionID
	contentType string
	sent        []transport.Frame
}

func (c *fakeConn) ID() transport.ConnectionID { return c.id }
func (c *fakeConn) ContentType() string        { return c.contentType }
func (c *fakeConn) Send(f transport.Frame) error {
	c.sent = append(c.sent, f)
	return nil
}
func (c *fakeConn) Close() error { return nil }

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	root := NewRootContainer(testLogger())
	raw := &fakeConn{id: transport.ConnectionID("c1"), contentType: "application/json"}
	return NewConnection(raw, root)
}

func newTestDispatcher(registry *Registry, apiTimeout time.Duration) *Dispatcher {
	selector := format.NewSelector(format.NewJSON(), format.NewProto())
	hooks := NewHookEngine(testLogger())
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewDispatcher(registry, selector, hooks, metrics, apiTimeout, testLogger())
}

func TestDispatcher_SuccessRoundTrip(t *testing.T) {
	registry := NewRegistry(testLogger())
	m := NewModule("math")
	m.Procedure(&Procedure{
		Name: "double",
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			payload := input.(map[string]any)
			return map[string]any{"result": payload["n"].(float64) * 2}, nil
		},
	})
	registry.Register(m)
	require.NoError(t, registry.Load())

	d := newTestDispatcher(registry, time.Second)
	conn := newTestConnection(t)

	payload, err := jsoncodec.Marshal(map[string]any{"n": 21})
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), conn, "math.double", payload, 0, nil)

	var decoded map[string]any
	require.NoError(t, jsoncodec.Unmarshal(resp, &decoded))
	assert.Equal(t, float64(42), decoded["result"])
}

func TestDispatcher_NotFoundProcedure(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Load())
	d := newTestDispatcher(registry, time.Second)
	conn := newTestConnection(t)

	resp := d.Dispatch(context.Background(), conn, "missing.proc", nil, 0, nil)

	var wire wireError
	require.NoError(t, jsoncodec.Unmarshal(resp, &wire))
	assert.Equal(t, string(errspkg.NotFound), wire.Code)
}

func TestDispatcher_GuardRejectsWithForbidden(t *testing.T) {
	registry := NewRegistry(testLogger())
	m := NewModule("secure")
	m.Procedure(&Procedure{
		Name: "action",
		Guards: []Guard{
			func(call *Call) (bool, error) { return false, nil },
		},
		Handler: func(ctx context.Context, call *Call, input any) (any, error) { return "ok", nil },
	})
	registry.Register(m)
	require.NoError(t, registry.Load())

	d := newTestDispatcher(registry, time.Second)
	conn := newTestConnection(t)

	resp := d.Dispatch(context.Background(), conn, "secure.action", []byte("{}"), 0, nil)

	var wire wireError
	require.NoError(t, jsoncodec.Unmarshal(resp, &wire))
	assert.Equal(t, string(errspkg.Forbidden), wire.Code)
}

func TestDispatcher_TimeoutSurfacesAndDisposesScope(t *testing.T) {
	registry := NewRegistry(testLogger())
	m := NewModule("slow")
	m.Procedure(&Procedure{
		Name: "forever",
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			<-ctx.Done()
			<-time.After(time.Hour)
			return nil, nil
		},
	})
	registry.Register(m)
	require.NoError(t, registry.Load())

	d := newTestDispatcher(registry, 20*time.Millisecond)
	conn := newTestConnection(t)

	resp := d.Dispatch(context.Background(), conn, "slow.forever", []byte("{}"), 0, nil)

	var wire wireError
	require.NoError(t, jsoncodec.Unmarshal(resp, &wire))
	assert.Equal(t, string(errspkg.Timeout), wire.Code)

	conn.Container().mu.Lock()
	defer conn.Container().mu.Unlock()
	assert.Empty(t, conn.Container().children, "the Call scope must be disposed once the call times out")
}

func TestDispatcher_MiddlewareWrapsHandler(t *testing.T) {
	registry := NewRegistry(testLogger())
	var order []string
	m := NewModule("wrapped")
	m.Procedure(&Procedure{
		Name: "action",
		Middlewares: []Middleware{
			func(next Handler) Handler {
				return func(ctx context.Context, call *Call, input any) (any, error) {
					order = append(order, "outer-before")
					v, err := next(ctx, call, input)
					order = append(order, "outer-after")
					return v, err
				}
			},
		},
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			order = append(order, "handler")
			return "done", nil
		},
	})
	registry.Register(m)
	require.NoError(t, registry.Load())

	d := newTestDispatcher(registry, time.Second)
	conn := newTestConnection(t)

	d.Dispatch(context.Background(), conn, "wrapped.action", []byte("{}"), 0, nil)
	assert.Equal(t, []string{"outer-before", "handler", "outer-after"}, order)
}

func TestDispatcher_ProtoRoundTripUsesInputFactory(t *testing.T) {
	registry := NewRegistry(testLogger())
	m := NewModule("struct")
	m.Procedure(&Procedure{
		Name:         "echo",
		InputFactory: func() any { return format.MustNewMessage[*structpb.Struct]() },
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			s := input.(*structpb.Struct)
			return s, nil
		},
	})
	registry.Register(m)
	require.NoError(t, registry.Load())

	d := newTestDispatcher(registry, time.Second)
	root := NewRootContainer(testLogger())
	raw := &fakeConn{id: transport.ConnectionID("c1"), contentType: "application/x-protobuf"}
	conn := NewConnection(raw, root)

	req, err := structpb.NewStruct(map[string]any{"greeting": "hi"})
	require.NoError(t, err)
	payload, err := proto.Marshal(req)
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), conn, "struct.echo", payload, 0, nil)

	var decoded structpb.Struct
	require.NoError(t, proto.Unmarshal(resp, &decoded))
	assert.Equal(t, "hi", decoded.Fields["greeting"].GetStringValue())
}
