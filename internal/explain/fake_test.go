package explain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// sliceStream replays fixed deltas, optionally failing at the end.
type sliceStream struct {
	ctx    context.Context
	deltas []string
	fail   error
	block  bool
	i      int
	cur    string
	err    error
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.ctx.Err() != nil {
		s.err = s.ctx.Err()
		return false
	}
	if s.i < len(s.deltas) {
		s.cur = s.deltas[s.i]
		s.i++
		return true
	}
	if s.block {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	s.err = s.fail
	return false
}

func (s *sliceStream) Delta() string { return s.cur }
func (s *sliceStream) Err() error    { return s.err }
func (s *sliceStream) Close() error  { s.closed = true; return nil }

type fakeTransport struct {
	mu       sync.Mutex
	deltas   []string
	fail     error
	block    bool
	streams  int
	requests []Request
	chats    []ChatRequest
	reply    string
	chatErr  error
}

func (f *fakeTransport) Stream(ctx context.Context, req Request) DeltaStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams++
	f.requests = append(f.requests, req)
	return &sliceStream{ctx: ctx, deltas: f.deltas, fail: f.fail, block: f.block}
}

func (f *fakeTransport) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	return f.reply, f.chatErr
}

func (f *fakeTransport) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

type failingCreds struct{}

func (failingCreds) Lookup() (string, error) { return "", errors.New("keyring locked") }

func newTestService(t *testing.T, tr Transport) *Service {
	t.Helper()
	return NewService(tr, StaticKey("sk-test"), NewCache(4, 0), Config{
		ReplayChunkSize: 4,
		ReplayDelay:     time.Millisecond,
	}, nil)
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
			return nil
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func text(events []Event) string {
	var s string
	for _, ev := range events {
		if ev.Kind == EventChunk {
			s += ev.Text
		}
	}
	return s
}
