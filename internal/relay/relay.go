// Package relay forwards explanation streams into the Bubble Tea runtime,
// one event per command, and drops events for surfaces that have moved on.
package relay

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/codeinsight/internal/explain"
)

// SurfaceID names a conversation surface.
type SurfaceID string

// EventMsg is a tea.Msg carrying one stream event for a surface.
type EventMsg struct {
	Surface SurfaceID
	Seq     uint64
	Event   explain.Event
}

// DoneMsg is a tea.Msg sent when a surface's stream channel closes.
type DoneMsg struct {
	Surface SurfaceID
	Seq     uint64
}

type subscription struct {
	seq    uint64
	ch     <-chan explain.Event
	cancel context.CancelFunc
}

// Relay tracks the live stream of each surface.
type Relay struct {
	mu       sync.Mutex
	seq      uint64
	surfaces map[SurfaceID]*subscription
}

// New creates an empty Relay.
func New() *Relay {
	return &Relay{surfaces: make(map[SurfaceID]*subscription)}
}

// Attach makes ch the live stream for id, cancelling any previous one, and
// returns the command that waits for its first event.
func (r *Relay) Attach(id SurfaceID, ch <-chan explain.Event, cancel context.CancelFunc) tea.Cmd {
	r.mu.Lock()
	if prev, ok := r.surfaces[id]; ok && prev.cancel != nil {
		prev.cancel()
	}
	r.seq++
	sub := &subscription{seq: r.seq, ch: ch, cancel: cancel}
	r.surfaces[id] = sub
	r.mu.Unlock()

	return waitForEvent(id, sub)
}

// Current reports whether msg belongs to the live stream of its surface.
func (r *Relay) Current(surface SurfaceID, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.surfaces[surface]
	return ok && sub.seq == seq
}

// Next returns the command that waits for the event after msg, or nil when
// msg is stale. Call it after handling each EventMsg.
func (r *Relay) Next(msg EventMsg) tea.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.surfaces[msg.Surface]
	if !ok || sub.seq != msg.Seq {
		return nil
	}
	return waitForEvent(msg.Surface, sub)
}

// Finish forgets the stream that produced done, if it is still live.
func (r *Relay) Finish(done DoneMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.surfaces[done.Surface]; ok && sub.seq == done.Seq {
		if sub.cancel != nil {
			sub.cancel()
		}
		delete(r.surfaces, done.Surface)
	}
}

// Active reports whether id has a live stream.
func (r *Relay) Active(id SurfaceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.surfaces[id]
	return ok
}

// Close cancels the live stream of id. Events already in flight are
// reported as stale by Current.
func (r *Relay) Close(id SurfaceID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.surfaces[id]; ok {
		if sub.cancel != nil {
			sub.cancel()
		}
		delete(r.surfaces, id)
	}
}

// CloseAll cancels every live stream.
func (r *Relay) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sub := range r.surfaces {
		if sub.cancel != nil {
			sub.cancel()
		}
		delete(r.surfaces, id)
	}
}

// waitForEvent returns a tea.Cmd that blocks for the next event of sub.
func waitForEvent(id SurfaceID, sub *subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.ch
		if !ok {
			return DoneMsg{Surface: id, Seq: sub.seq}
		}
		return EventMsg{Surface: id, Seq: sub.seq, Event: ev}
	}
}
