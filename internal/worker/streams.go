package worker

import (
	"sync"
	"sync/atomic"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
)

// StreamState is the closed set of states a Stream moves through.
type StreamState int

const (
	StreamPending StreamState = iota
	StreamOpen
	StreamClosed
	StreamErrored
)

// StreamMeta carries the OPEN frame's declared metadata.
type StreamMeta struct {
	Filename string
	MimeType string
	Size     int64
}

// Stream is one upstream or downstream binary channel within a connection.
// Id is unique per (connection, direction) and is never reused.
type Stream struct {
	ID        uint32
	Meta      StreamMeta
	Upstream  bool
	mu        sync.Mutex
	state     StreamState
	window    int
	chunkSize int
	waiters   []chan error
}

func newStream(id uint32, meta StreamMeta, upstream bool, window, chunkSize int) *Stream {
	return &Stream{ID: id, Meta: meta, Upstream: upstream, state: StreamPending, window: window, chunkSize: chunkSize}
}

// State reports the stream's current state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChunkSize is the negotiated maximum DATA frame payload size.
func (s *Stream) ChunkSize() int { return s.chunkSize }

// Credit reports the remaining flow-control window.
func (s *Stream) Credit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Acknowledge restores window credits after the consumer processes a
// chunk, implementing credit-based flow control.
func (s *Stream) Acknowledge(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window += n
}

// consumeCredit spends n credits for an outgoing DATA frame, returning
// false if the window is exhausted.
func (s *Stream) consumeCredit(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window < n {
		return false
	}
	s.window -= n
	return true
}

func (s *Stream) open() {
	s.mu.Lock()
	s.state = StreamOpen
	s.mu.Unlock()
}

func (s *Stream) close() {
	s.mu.Lock()
	s.state = StreamClosed
	s.mu.Unlock()
}

// abort transitions the stream to errored and fails every pending reader
// with StreamAborted. waiters is currently only ever populated by tests;
// no production reader registers on a Stream yet.
func (s *Stream) abort() {
	s.mu.Lock()
	if s.state == StreamClosed || s.state == StreamErrored {
		s.mu.Unlock()
		return
	}
	s.state = StreamErrored
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	err := errspkg.New(errspkg.StreamAborted, "stream aborted")
	for _, w := range waiters {
		w <- err
	}
}

// streamRegistry tracks per-connection upstream/downstream Streams,
// allocating monotonically increasing downstream ids (upstream ids are
// chosen by the client) and aborting every open stream when its connection
// closes.
type streamRegistry struct {
	mu            sync.Mutex
	up            map[uint32]*Stream
	down          map[uint32]*Stream
	nextUpID      uint32
	nextDownID    uint32
	defaultWindow int
	chunkSize     int
	metrics       *Metrics
}

// NewStreamRegistry constructs a per-connection stream registry with the
// given initial credit window and negotiated chunk size.
func NewStreamRegistry(window, chunkSize int, metrics *Metrics) *streamRegistry {
	return &streamRegistry{
		up:            make(map[uint32]*Stream),
		down:          make(map[uint32]*Stream),
		defaultWindow: window,
		chunkSize:     chunkSize,
		metrics:       metrics,
	}
}

// OpenUpstream registers an upstream opened by the client at clientID; the
// client allocates its own id, so duplicate ids within a connection are a
// caller error, not reassigned.
func (r *streamRegistry) OpenUpstream(clientID uint32, meta StreamMeta) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.up[clientID]; exists {
		return nil, errspkg.New(errspkg.Internal, "stream id already in use")
	}
	s := newStream(clientID, meta, true, r.defaultWindow, r.chunkSize)
	s.open()
	r.up[clientID] = s
	return s, nil
}

// OpenDownstream allocates the next server-side stream id and registers a
// new downstream Stream.
func (r *streamRegistry) OpenDownstream(meta StreamMeta) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := atomic.AddUint32(&r.nextDownID, 1)
	s := newStream(id, meta, false, r.defaultWindow, r.chunkSize)
	s.open()
	r.down[id] = s
	return s
}

// Upstream looks up an upstream by id.
func (r *streamRegistry) Upstream(id uint32) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.up[id]
	return s, ok
}

// Downstream looks up a downstream by id.
func (r *streamRegistry) Downstream(id uint32) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.down[id]
	return s, ok
}

// End transitions an upstream to closed on receipt of an END frame.
func (r *streamRegistry) End(id uint32) {
	r.mu.Lock()
	s, ok := r.up[id]
	r.mu.Unlock()
	if ok {
		s.close()
	}
}

// Abort transitions the named stream to errored on an ABORT frame.
func (r *streamRegistry) Abort(id uint32, upstream bool) {
	r.mu.Lock()
	var s *Stream
	var ok bool
	if upstream {
		s, ok = r.up[id]
	} else {
		s, ok = r.down[id]
	}
	r.mu.Unlock()
	if ok {
		s.abort()
		if r.metrics != nil {
			r.metrics.StreamsAborted.Inc()
		}
	}
}

// AbortAll transitions every non-terminal stream to errored, called on
// connection close so no consumer is left waiting on a dead connection.
func (r *streamRegistry) AbortAll() {
	r.mu.Lock()
	all := make([]*Stream, 0, len(r.up)+len(r.down))
	for _, s := range r.up {
		all = append(all, s)
	}
	for _, s := range r.down {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		before := s.State()
		s.abort()
		if before != StreamClosed && before != StreamErrored && r.metrics != nil {
			r.metrics.StreamsAborted.Inc()
		}
	}
}
