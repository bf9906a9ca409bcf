// Package transport defines the narrow contract external transports
// implement to terminate connections for an API worker. Concrete framings
// (WebSocket, TCP, HTTP long-poll, ...) are external collaborators; this
// package only describes the interface and ships one in-memory reference
// implementation (transport/channel) for tests and local use.
package transport

import (
	"context"

	"github.com/neematajs/neemata-go/internal/logging"
)

// FrameKind is the closed set of frame kinds a transport exchanges with the
// worker runtime.
type FrameKind int

const (
	FrameRPC FrameKind = iota
	FrameStreamOpen
	FrameStreamData
	FrameStreamEnd
	FrameStreamAbort
	FrameSubscriptionEvent
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameRPC:
		return "Rpc"
	case FrameStreamOpen:
		return "StreamOpen"
	case FrameStreamData:
		return "StreamData"
	case FrameStreamEnd:
		return "StreamEnd"
	case FrameStreamAbort:
		return "StreamAbort"
	case FrameSubscriptionEvent:
		return "SubscriptionEvent"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Frame is the unit of exchange between a Connection and the runtime.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ConnectionID opaquely identifies one transport-level connection.
type ConnectionID string

// Connection is the handle a transport gives the runtime for one accepted
// connection. Send delivers a Frame to the remote peer; ContentType reports
// the negotiated format so the runtime's Format Selector can pick a codec.
type Connection interface {
	ID() ConnectionID
	ContentType() string
	Send(Frame) error
	Close() error
}

// Host is the narrow surface a Transport is given at Start, deliberately
// not the whole Application: transports never see the registry or the
// container, only what they need to bridge frames into the runtime.
type Host interface {
	Logger() logging.ServiceLogger

	// OnConnect registers a newly accepted Connection and creates its
	// connection-scope container. Must be called once per Connection before
	// OnFrame is called for it.
	OnConnect(Connection)

	// OnFrame hands a decoded Frame from an already-registered Connection to
	// the runtime (API dispatch, stream registry, or subscription manager,
	// depending on Frame.Kind).
	OnFrame(ConnectionID, Frame)

	// OnDisconnect tears down a Connection: its subscriptions, its streams,
	// and its connection-scope container.
	OnDisconnect(ConnectionID)
}

// Transport terminates connections for one wire protocol and bridges them
// into the runtime via Host. Start must not return until the transport is
// ready to accept connections (or has failed to become so).
type Transport interface {
	Name() string
	Start(ctx context.Context, host Host) error
	Stop(ctx context.Context) error
}
