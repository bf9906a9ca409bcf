// Package channel provides an in-memory Transport backed by a Watermill
// gochannel pub/sub. It is useful for tests and for same-process clients; it
// is registered under the name "channel" and is the only Transport shipped
// by this module (every other wire framing is an external collaborator).
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/neematajs/neemata-go/internal/ids"
	"github.com/neematajs/neemata-go/transport"
)

// Name is used to register this transport and to select it via
// config.Config.Transports.
const Name = "channel"

func init() {
	transport.RegisterWithCapabilities(Name, func() (transport.Transport, error) {
		return New(), nil
	}, transport.ChannelCapabilities)
}

// Transport is an in-process Transport: Dial opens a logical connection that
// exchanges Frames with the runtime over Watermill gochannel topics, with no
// real network hop. Each Dial gets its own inbound/outbound topic pair.
type Transport struct {
	mu     sync.Mutex
	host   transport.Host
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	conns  map[transport.ConnectionID]*conn
}

// New constructs a channel Transport. Call Dial after Start to simulate a
// client connecting.
func New() *Transport {
	return &Transport{conns: make(map[transport.ConnectionID]*conn)}
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Start(ctx context.Context, host transport.Host) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = host
	t.logger = watermill.NopLogger{}
	t.pubsub = gochannel.NewGoChannel(gochannel.Config{}, t.logger)
	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pubsub == nil {
		return nil
	}
	for id := range t.conns {
		delete(t.conns, id)
		t.host.OnDisconnect(id)
	}
	return t.pubsub.Close()
}

// Dial simulates a client connecting to this transport. It returns a Client
// the caller uses to send Frames and to read the Frames the runtime sends
// back (RPC responses, stream data, subscription events).
func (t *Transport) Dial(contentType string) (*Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pubsub == nil {
		return nil, fmt.Errorf("neemata: channel transport not started")
	}

	id := transport.ConnectionID(ids.CreateULID())
	inboundTopic := "in." + string(id)
	outboundTopic := "out." + string(id)

	c := &conn{id: id, contentType: contentType, topic: outboundTopic, pub: t.pubsub}
	t.conns[id] = c
	t.host.OnConnect(c)

	sub, err := t.pubsub.Subscribe(context.Background(), inboundTopic)
	if err != nil {
		delete(t.conns, id)
		return nil, err
	}
	go t.pump(id, sub)

	out, err := t.pubsub.Subscribe(context.Background(), outboundTopic)
	if err != nil {
		delete(t.conns, id)
		return nil, err
	}

	return &Client{id: id, inboundTopic: inboundTopic, pub: t.pubsub, out: out}, nil
}

func (t *Transport) pump(id transport.ConnectionID, sub <-chan *message.Message) {
	for msg := range sub {
		frame := decodeFrame(msg)
		t.host.OnFrame(id, frame)
		msg.Ack()
	}
}

// Disconnect simulates the client dropping the connection.
func (t *Transport) Disconnect(id transport.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[id]; !ok {
		return
	}
	delete(t.conns, id)
	t.host.OnDisconnect(id)
}

// conn is the transport.Connection handed to the Host.
type conn struct {
	id          transport.ConnectionID
	contentType string
	topic       string
	pub         message.Publisher
}

func (c *conn) ID() transport.ConnectionID { return c.id }
func (c *conn) ContentType() string        { return c.contentType }

func (c *conn) Send(frame transport.Frame) error {
	return c.pub.Publish(c.topic, encodeFrame(frame))
}

func (c *conn) Close() error { return nil }

// Client is the test/local-dev facing half of a Dial: it publishes Frames to
// the runtime and exposes the Frames the runtime sends back.
type Client struct {
	id           transport.ConnectionID
	inboundTopic string
	pub          message.Publisher
	out          <-chan *message.Message
}

func (c *Client) ID() transport.ConnectionID { return c.id }

// Send delivers a Frame as if the client had written it to the wire.
func (c *Client) Send(frame transport.Frame) error {
	return c.pub.Publish(c.inboundTopic, encodeFrame(frame))
}

// Recv blocks for the next Frame the runtime sends back, or returns false if
// the channel closed.
func (c *Client) Recv() (transport.Frame, bool) {
	msg, ok := <-c.out
	if !ok {
		return transport.Frame{}, false
	}
	frame := decodeFrame(msg)
	msg.Ack()
	return frame, true
}

func encodeFrame(f transport.Frame) *message.Message {
	msg := message.NewMessage(ids.CreateULID(), f.Payload)
	msg.Metadata.Set("kind", f.Kind.String())
	return msg
}

func decodeFrame(msg *message.Message) transport.Frame {
	kind := frameKindFromString(msg.Metadata.Get("kind"))
	return transport.Frame{Kind: kind, Payload: msg.Payload}
}

func frameKindFromString(s string) transport.FrameKind {
	switch s {
	case "Rpc":
		return transport.FrameRPC
	case "StreamOpen":
		return transport.FrameStreamOpen
	case "StreamData":
		return transport.FrameStreamData
	case "StreamEnd":
		return transport.FrameStreamEnd
	case "StreamAbort":
		return transport.FrameStreamAbort
	case "SubscriptionEvent":
		return transport.FrameSubscriptionEvent
	default:
		return transport.FrameError
	}
}
