// Package events tracks external events that arrived before an
// orchestration waited for them.
//
// Raised events are recorded in the instance history as EventBuffered
// records. An EventRaised carrying the same BufferID consumes one. The set
// of unconsumed records is therefore part of the durable history and
// survives process restarts.
package events

import (
	"time"

	"github.com/petrijr/durable/pkg/api"
)

// Mailbox is the view of one instance's unconsumed events, in arrival
// order. It is built from history for one activation and is not safe for
// concurrent use.
type Mailbox struct {
	pending   []api.HistoryEvent
	seen      map[string]struct{}
	retention time.Duration
	now       func() time.Time
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithRetention hides buffered events older than d. Zero keeps events for
// the whole lifetime of the instance.
func WithRetention(d time.Duration) Option {
	return func(m *Mailbox) {
		m.retention = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		m.now = now
	}
}

// Load builds the mailbox of a history.
func Load(history []api.HistoryEvent, opts ...Option) *Mailbox {
	m := &Mailbox{
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	consumed := make(map[string]struct{})
	for _, ev := range history {
		if ev.Type == api.EventRaised && ev.BufferID != "" {
			consumed[ev.BufferID] = struct{}{}
		}
	}
	for _, ev := range history {
		if ev.Type != api.EventBuffered {
			continue
		}
		m.seen[ev.BufferID] = struct{}{}
		if _, ok := consumed[ev.BufferID]; !ok {
			m.pending = append(m.pending, ev)
		}
	}
	return m
}

// Seen reports whether the raise identified by bufferID is already
// recorded, consumed or not.
func (m *Mailbox) Seen(bufferID string) bool {
	_, ok := m.seen[bufferID]
	return ok
}

// Add records a newly arrived event.
func (m *Mailbox) Add(ev api.HistoryEvent) {
	m.seen[ev.BufferID] = struct{}{}
	m.pending = append(m.pending, ev)
}

// Take removes and returns the oldest live event with the given name.
func (m *Mailbox) Take(name string) (api.HistoryEvent, bool) {
	for i, ev := range m.pending {
		if ev.Name != name || m.expired(ev) {
			continue
		}
		m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
		return ev, true
	}
	return api.HistoryEvent{}, false
}

// Pending returns the live events still waiting for a consumer.
func (m *Mailbox) Pending() []api.HistoryEvent {
	var out []api.HistoryEvent
	for _, ev := range m.pending {
		if !m.expired(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Names returns the name of every pending event, one entry per event.
func (m *Mailbox) Names() []string {
	var names []string
	for _, ev := range m.Pending() {
		names = append(names, ev.Name)
	}
	return names
}

func (m *Mailbox) expired(ev api.HistoryEvent) bool {
	if m.retention <= 0 || ev.At.IsZero() {
		return false
	}
	return ev.At.Before(m.now().Add(-m.retention))
}
