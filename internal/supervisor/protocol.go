// Package supervisor implements the worker process supervisor: it forks
// API and Task worker processes, speaks the length-prefixed binary worker
// message protocol with each over its stdin/stdout pipe, restarts crashed
// workers, and routes offloaded task invocations to Task workers
// round-robin.
package supervisor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/neematajs/neemata-go/internal/jsoncodec"
)

// MessageKind is the closed set of worker message protocol frames.
type MessageKind uint8

const (
	MsgReady MessageKind = iota
	MsgStart
	MsgStop
	MsgExecuteInvoke
	MsgExecuteResult
)

func (k MessageKind) String() string {
	switch k {
	case MsgReady:
		return "Ready"
	case MsgStart:
		return "Start"
	case MsgStop:
		return "Stop"
	case MsgExecuteInvoke:
		return "ExecuteInvoke"
	case MsgExecuteResult:
		return "ExecuteResult"
	default:
		return "Unknown"
	}
}

// ExecuteInvokePayload is the body of an ExecuteInvoke message: an API
// worker asking a task worker (via the supervisor) to run a task.
type ExecuteInvokePayload struct {
	CorrelationID string `json:"correlationId"`
	TaskName      string `json:"taskName"`
	Args          []byte `json:"args"`
}

// ExecuteResultPayload is the body of an ExecuteResult message: the task
// worker's reply, routed back to the waiting API worker.
type ExecuteResultPayload struct {
	CorrelationID string `json:"correlationId"`
	Result        []byte `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Message is one frame of the worker message protocol: a kind tag plus a
// JSON-encoded payload (empty for Ready/Start/Stop).
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// WriteMessage writes a length-prefixed frame: 1 byte kind, 4 byte
// big-endian payload length, then the payload.
func WriteMessage(w io.Writer, msg Message) error {
	header := make([]byte, 5)
	header[0] = byte(msg.Kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(msg.Payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("neemata: writing message header: %w", err)
	}
	if len(msg.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(msg.Payload); err != nil {
		return fmt.Errorf("neemata: writing message payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed frame from r.
func ReadMessage(r *bufio.Reader) (Message, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Message{}, err
	}
	kind := MessageKind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length == 0 {
		return Message{Kind: kind}, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("neemata: reading message payload: %w", err)
	}
	return Message{Kind: kind, Payload: payload}, nil
}

// encodeExecuteInvoke and encodeExecuteResult wrap jsoncodec so the
// protocol's payload format stays consistent with the rest of the runtime.

func encodeExecuteInvoke(p ExecuteInvokePayload) ([]byte, error) { return jsoncodec.Marshal(p) }

func decodeExecuteInvoke(data []byte) (ExecuteInvokePayload, error) {
	var p ExecuteInvokePayload
	err := jsoncodec.Unmarshal(data, &p)
	return p, err
}

func encodeExecuteResult(p ExecuteResultPayload) ([]byte, error) { return jsoncodec.Marshal(p) }

func decodeExecuteResult(data []byte) (ExecuteResultPayload, error) {
	var p ExecuteResultPayload
	err := jsoncodec.Unmarshal(data, &p)
	return p, err
}
