package worker

import (
	"sync"

	"github.com/neematajs/neemata-go/transport"
)

// Filter evaluates whether a subscriber should receive payload.
type Filter func(payload []byte) bool

type subscriber struct {
	conn   *Connection
	filter Filter
}

// SubscriptionManager fans a channel-key out to its subscribers with
// best-effort delivery (a full transport send buffer drops the payload for
// that subscriber and increments a counter rather than terminating the
// subscription) and atomically removes a connection's subscriptions on
// disconnect. The Basic manager does exact channel-key matching only;
// wildcard matching is left to alternative implementations.
type SubscriptionManager struct {
	mu      sync.RWMutex
	byKey   map[string][]*subscriber
	byConn  map[transport.ConnectionID]map[string]struct{}
	metrics *Metrics
}

// NewSubscriptionManager constructs an empty SubscriptionManager.
func NewSubscriptionManager(metrics *Metrics) *SubscriptionManager {
	return &SubscriptionManager{
		byKey:   make(map[string][]*subscriber),
		byConn:  make(map[transport.ConnectionID]map[string]struct{}),
		metrics: metrics,
	}
}

// Subscribe registers conn for channelKey, optionally filtered.
func (s *SubscriptionManager) Subscribe(conn *Connection, channelKey string, filter Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKey[channelKey] = append(s.byKey[channelKey], &subscriber{conn: conn, filter: filter})

	keys, ok := s.byConn[conn.ID()]
	if !ok {
		keys = make(map[string]struct{})
		s.byConn[conn.ID()] = keys
	}
	keys[channelKey] = struct{}{}
}

// Unsubscribe removes conn's subscription to channelKey, if any.
func (s *SubscriptionManager) Unsubscribe(conn *Connection, channelKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(conn.ID(), channelKey)
}

// OnDisconnection atomically removes every subscription belonging to
// connID before any concurrent Publish can observe it as still
// subscribed.
func (s *SubscriptionManager) OnDisconnection(connID transport.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.byConn[connID]
	for key := range keys {
		s.byKey[key] = removeByConnID(s.byKey[key], connID)
		if len(s.byKey[key]) == 0 {
			delete(s.byKey, key)
		}
	}
	delete(s.byConn, connID)
}

func (s *SubscriptionManager) removeLocked(connID transport.ConnectionID, channelKey string) {
	s.byKey[channelKey] = removeByConnID(s.byKey[channelKey], connID)
	if len(s.byKey[channelKey]) == 0 {
		delete(s.byKey, channelKey)
	}
	if keys, ok := s.byConn[connID]; ok {
		delete(keys, channelKey)
		if len(keys) == 0 {
			delete(s.byConn, connID)
		}
	}
}

func removeByConnID(subs []*subscriber, connID transport.ConnectionID) []*subscriber {
	out := subs[:0]
	for _, sub := range subs {
		if sub.conn.ID() != connID {
			out = append(out, sub)
		}
	}
	return out
}

// Publish iterates every subscriber of channelKey, evaluates its filter if
// present, and hands payload to its transport wrapped in a
// SubscriptionEvent frame. Delivery is best-effort: a subscriber whose
// Send fails is counted as dropped, not unsubscribed.
func (s *SubscriptionManager) Publish(channelKey string, payload []byte) {
	s.mu.RLock()
	subs := append([]*subscriber(nil), s.byKey[channelKey]...)
	s.mu.RUnlock()

	frame := transport.Frame{Kind: transport.FrameSubscriptionEvent, Payload: payload}
	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(payload) {
			continue
		}
		if err := sub.conn.Send(frame); err != nil {
			if s.metrics != nil {
				s.metrics.SubscribersDrops.Inc()
			}
		}
	}
}
