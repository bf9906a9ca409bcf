package channel

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neematajs/neemata-go/internal/logging"
	"github.com/neematajs/neemata-go/transport"
)

func testLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type recordingHost struct {
	logger       logging.ServiceLogger
	connected    []transport.Connection
	frames       []transport.Frame
	disconnected []transport.ConnectionID
}

func (h *recordingHost) Logger() logging.ServiceLogger { return h.logger }

func (h *recordingHost) OnConnect(c transport.Connection) { h.connected = append(h.connected, c) }

func (h *recordingHost) OnFrame(id transport.ConnectionID, f transport.Frame) {
	h.frames = append(h.frames, f)
	if c := h.findByID(id); c != nil {
		_ = c.Send(transport.Frame{Kind: transport.FrameRPC, Payload: []byte("echo:" + string(f.Payload))})
	}
}

func (h *recordingHost) OnDisconnect(id transport.ConnectionID) {
	h.disconnected = append(h.disconnected, id)
}

func (h *recordingHost) findByID(id transport.ConnectionID) transport.Connection {
	for _, c := range h.connected {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

func TestTransport_DialSendRecv(t *testing.T) {
	tr := New()
	host := &recordingHost{logger: testLogger()}
	require.NoError(t, tr.Start(context.Background(), host))

	client, err := tr.Dial("application/json")
	require.NoError(t, err)

	require.NoError(t, client.Send(transport.Frame{Kind: transport.FrameRPC, Payload: []byte("hello")}))

	frame, ok := recvWithTimeout(t, client)
	require.True(t, ok)
	assert.Equal(t, transport.FrameRPC, frame.Kind)
	assert.Equal(t, "echo:hello", string(frame.Payload))

	require.NoError(t, tr.Stop(context.Background()))
}

func TestTransport_Disconnect(t *testing.T) {
	tr := New()
	host := &recordingHost{logger: testLogger()}
	require.NoError(t, tr.Start(context.Background(), host))

	client, err := tr.Dial("application/json")
	require.NoError(t, err)

	tr.Disconnect(client.ID())
	assert.Contains(t, host.disconnected, client.ID())
}

func recvWithTimeout(t *testing.T, c *Client) (transport.Frame, bool) {
	t.Helper()
	type result struct {
		frame transport.Frame
		ok    bool
	}
	ch := make(chan result, 1)
	go func() {
		f, ok := c.Recv()
		ch <- result{f, ok}
	}()
	select {
	case r := <-ch:
		return r.frame, r.ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return transport.Frame{}, false
	}
}
