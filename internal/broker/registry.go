package broker

import (
	"sync"

	"github.com/samber/lo"
)

// Registry tracks which connections are subscribed to which channels.
// Empty sets are pruned so an idle channel costs nothing.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Conn]struct{} // channelID -> subscribers
	conns    map[Conn]map[string]struct{} // conn -> joined channels
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[Conn]struct{}),
		conns:    make(map[Conn]map[string]struct{}),
	}
}

// Add subscribes c to channelID and reports whether it was not subscribed before.
func (r *Registry) Add(channelID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channelID]
	if !ok {
		subs = make(map[Conn]struct{})
		r.channels[channelID] = subs
	}
	if _, dup := subs[c]; dup {
		return false
	}
	subs[c] = struct{}{}

	joined, ok := r.conns[c]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[c] = joined
	}
	joined[channelID] = struct{}{}
	return true
}

// Remove unsubscribes c from channelID and reports whether it was subscribed.
func (r *Registry) Remove(channelID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.remove(channelID, c)
}

// RemoveConn drops every subscription of c and returns the channels it left.
func (r *Registry) RemoveConn(c Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.conns[c])
	for _, channelID := range left {
		r.remove(channelID, c)
	}
	return left
}

func (r *Registry) remove(channelID string, c Conn) bool {
	subs, ok := r.channels[channelID]
	if !ok {
		return false
	}
	if _, ok := subs[c]; !ok {
		return false
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(r.channels, channelID)
	}

	if joined, ok := r.conns[c]; ok {
		delete(joined, channelID)
		if len(joined) == 0 {
			delete(r.conns, c)
		}
	}
	return true
}

// Subscribers returns a snapshot of the connections joined to channelID.
func (r *Registry) Subscribers(channelID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.channels[channelID])
}

func (r *Registry) Channels(c Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.conns[c])
}

func (r *Registry) IsSubscribed(channelID string, c Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.channels[channelID][c]
	return ok
}

// Len returns the number of channels with at least one subscriber.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}
