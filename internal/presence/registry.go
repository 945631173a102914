// Package presence tracks which users currently hold live sessions.
package presence

import (
	"sort"
	"sync"

	"messenger-service/internal/protocol"
)

// Sink is the delivery end of one live session. Implementations must make
// Deliver safe to call from any goroutine and non-blocking.
type Sink interface {
	SessionID() string
	UserID() string
	// Viewing returns the counterpart whose conversation the session has
	// open, or "" when idle.
	Viewing() string
	// Deliver makes a bounded attempt to push the event to the client.
	// A failed or dropped delivery is not an error for the caller.
	Deliver(event protocol.ServerEvent)
}

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Sink // userID -> sessionID -> sink
}

// Registry is a concurrency-safe multimap of user id to live sessions.
// Users hash onto shards so unrelated users never contend on one lock.
type Registry struct {
	shards [shardCount]*shard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]map[string]Sink)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(userID); i++ {
		h ^= uint32(userID[i])
		h *= 16777619
	}
	return r.shards[h%shardCount]
}

// Register adds the session to the user's set. Registering the same session
// twice is a no-op. It reports whether the user transitioned to online.
func (r *Registry) Register(userID string, sink Sink) (cameOnline bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[userID]
	if !ok {
		set = make(map[string]Sink)
		s.sessions[userID] = set
	}
	set[sink.SessionID()] = sink
	return !ok
}

// Unregister removes the session. It reports whether the user transitioned
// to offline. Unknown sessions are ignored.
func (r *Registry) Unregister(userID, sessionID string) (wentOffline bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if _, ok := set[sessionID]; !ok {
		return false
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(s.sessions, userID)
		return true
	}
	return false
}

// ActiveSessions returns a snapshot of the user's live sessions. The result
// is empty when the user is offline.
func (r *Registry) ActiveSessions(userID string) []Sink {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.sessions[userID]
	sinks := make([]Sink, 0, len(set))
	for _, sink := range set {
		sinks = append(sinks, sink)
	}
	return sinks
}

// OnlineUserIDs returns a sorted snapshot of all users with at least one
// session.
func (r *Registry) OnlineUserIDs() []string {
	var ids []string
	for _, s := range r.shards {
		s.mu.RLock()
		for userID := range s.sessions {
			ids = append(ids, userID)
		}
		s.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// AllSessions returns a snapshot of every live session across all users.
func (r *Registry) AllSessions() []Sink {
	var sinks []Sink
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.sessions {
			for _, sink := range set {
				sinks = append(sinks, sink)
			}
		}
		s.mu.RUnlock()
	}
	return sinks
}
