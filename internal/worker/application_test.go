package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neematajs/neemata-go/internal/config"
	errspkg "github.com/neematajs/neemata-go/internal/errors"
	"github.com/neematajs/neemata-go/internal/jsoncodec"
	metadatapkg "github.com/neematajs/neemata-go/internal/metadata"
	"github.com/neematajs/neemata-go/transport"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Transports = nil
	return cfg
}

func TestApplication_OrderedShutdown(t *testing.T) {
	app := New(testConfig(), config.WorkerTask, testLogger())

	var order []string
	app.Hooks().Bind(BeforeStop, "a", func(ctx context.Context, args ...any) error {
		order = append(order, "BeforeStop:1")
		return nil
	})
	app.Hooks().Bind(BeforeStop, "b", func(ctx context.Context, args ...any) error {
		order = append(order, "BeforeStop:2")
		return nil
	})
	app.Hooks().Bind(AfterStop, "a", func(ctx context.Context, args ...any) error {
		order = append(order, "AfterStop")
		return nil
	})
	app.Hooks().Bind(BeforeTerminate, "a", func(ctx context.Context, args ...any) error {
		order = append(order, "BeforeTerminate:1")
		return nil
	})
	app.Hooks().Bind(BeforeTerminate, "b", func(ctx context.Context, args ...any) error {
		order = append(order, "BeforeTerminate:2")
		return nil
	})
	app.Hooks().Bind(AfterTerminate, "a", func(ctx context.Context, args ...any) error {
		order = append(order, "AfterTerminate:1")
		return nil
	})
	app.Hooks().Bind(AfterTerminate, "b", func(ctx context.Context, args ...any) error {
		order = append(order, "AfterTerminate:2")
		return nil
	})

	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, StateRunning, app.State())

	require.NoError(t, app.Stop(context.Background()))
	assert.Equal(t, StateTerminated, app.State())

	assert.Equal(t, []string{
		"BeforeStop:1", "BeforeStop:2",
		"AfterStop",
		"BeforeTerminate:2", "BeforeTerminate:1",
		"AfterTerminate:2", "AfterTerminate:1",
	}, order)

	order = nil
	require.NoError(t, app.Stop(context.Background()))
	assert.Empty(t, order, "a second Stop on an already-terminated Application must be a no-op")
}

func TestApplication_StartFromRunningIsRejected(t *testing.T) {
	app := New(testConfig(), config.WorkerTask, testLogger())
	require.NoError(t, app.Start(context.Background()))

	err := app.Start(context.Background())
	require.Error(t, err)
	_, ok := errspkg.As(err, errspkg.InvalidState)
	assert.True(t, ok)
}

func TestApplication_TerminateIsIdempotent(t *testing.T) {
	app := New(testConfig(), config.WorkerTask, testLogger())
	require.NoError(t, app.Start(context.Background()))

	calls := 0
	app.Hooks().Bind(BeforeTerminate, "counter", func(ctx context.Context, args ...any) error {
		calls++
		return nil
	})

	require.NoError(t, app.Terminate(context.Background()))
	require.NoError(t, app.Terminate(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateTerminated, app.State())
}

func TestApplication_TasksExecuteRegisteredTask(t *testing.T) {
	app := New(testConfig(), config.WorkerTask, testLogger())
	m := NewModule("math")
	m.Task(&Task{
		Name: "add",
		Fn: func(ctx context.Context, call *Call, args any) (any, error) {
			pair := args.([]int)
			return pair[0] + pair[1], nil
		},
	})
	app.Registry().Register(m)

	require.NoError(t, app.Start(context.Background()))

	result, err := app.Tasks().Execute(context.Background(), "math.add", []int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 5, result)
}

func TestApplication_OnFrameThreadsHeadersIntoCall(t *testing.T) {
	app := New(testConfig(), config.WorkerAPI, testLogger())
	var received metadatapkg.Metadata
	m := NewModule("echo")
	m.Procedure(&Procedure{
		Name: "headers",
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			received = call.Headers
			return "ok", nil
		},
	})
	app.Registry().Register(m)
	require.NoError(t, app.Start(context.Background()))

	raw := &fakeConn{id: transport.ConnectionID("c1"), contentType: "application/json"}
	app.OnConnect(raw)

	payload, err := jsoncodec.Marshal(map[string]any{})
	require.NoError(t, err)
	env, err := jsoncodec.Marshal(rpcEnvelope{
		CallID:    "call-1",
		Procedure: "echo.headers",
		Headers:   metadatapkg.Metadata{"correlationId": "corr-1"},
		Payload:   payload,
	})
	require.NoError(t, err)

	app.OnFrame(raw.ID(), transport.Frame{Kind: transport.FrameRPC, Payload: env})

	require.Len(t, raw.sent, 1)
	assert.Equal(t, metadatapkg.Metadata{"correlationId": "corr-1"}, received)
}

type fakeTransport struct {
	name    string
	started bool
}

func (f *fakeTransport) Name() string { return f.name }
func (f *fakeTransport) Start(ctx context.Context, host transport.Host) error {
	f.started = true
	return nil
}
func (f *fakeTransport) Stop(ctx context.Context) error { return nil }

func TestApplication_TransportReturnsStartedInstance(t *testing.T) {
	tr := &fakeTransport{name: "fake-transport-accessor"}
	transport.Register(tr.name, func() (transport.Transport, error) { return tr, nil })

	cfg := testConfig()
	cfg.Transports = []string{tr.name}
	app := New(cfg, config.WorkerAPI, testLogger())
	require.NoError(t, app.Start(context.Background()))

	got, ok := app.Transport(tr.name)
	require.True(t, ok)
	assert.Same(t, tr, got)
	assert.True(t, tr.started)

	_, ok = app.Transport("does-not-exist")
	assert.False(t, ok)
}
