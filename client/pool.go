package client

import (
	"context"
	"sync"
)

type poolEntry struct {
	sess  *Session
	refs  int
	ready chan struct{}
	err   error
}

func (e *poolEntry) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Pool shares one Session per channel between its users and closes it when
// the last reference is released.
type Pool struct {
	client *Client

	mu      sync.Mutex
	entries map[string]*poolEntry
}

func NewPool(c *Client) *Pool {
	return &Pool{client: c, entries: make(map[string]*poolEntry)}
}

// Acquire returns the channel's session and a release func. Release is idempotent.
func (p *Pool) Acquire(ctx context.Context, channelID string) (*Session, func(), error) {
	p.mu.Lock()
	e, ok := p.entries[channelID]
	if ok && e.isReady() && e.sess != nil && e.sess.Err() != nil {
		// dead session: replace it for new users, old holders keep their reference
		delete(p.entries, channelID)
		ok = false
	}
	if !ok {
		e = &poolEntry{ready: make(chan struct{})}
		p.entries[channelID] = e
		e.refs++
		p.mu.Unlock()

		e.sess, e.err = p.client.Connect(ctx, channelID)
		close(e.ready)
		if e.err != nil {
			p.mu.Lock()
			if p.entries[channelID] == e {
				delete(p.entries, channelID)
			}
			p.mu.Unlock()
			return nil, nil, e.err
		}
		return e.sess, p.releaser(channelID, e), nil
	}
	e.refs++
	p.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		p.release(channelID, e)
		return nil, nil, ctx.Err()
	}
	if e.err != nil {
		return nil, nil, e.err
	}
	return e.sess, p.releaser(channelID, e), nil
}

// Len reports how many channels currently hold a session.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) releaser(channelID string, e *poolEntry) func() {
	var once sync.Once
	return func() { once.Do(func() { p.release(channelID, e) }) }
}

func (p *Pool) release(channelID string, e *poolEntry) {
	p.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && p.entries[channelID] == e {
		delete(p.entries, channelID)
	}
	p.mu.Unlock()

	if last && e.sess != nil {
		_ = e.sess.Close()
	}
}

// Close closes every pooled session regardless of references.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.sess != nil {
			_ = e.sess.Close()
		}
	}
}
