package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/codeinsight/internal/explain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func feed(events ...explain.Event) <-chan explain.Event {
	ch := make(chan explain.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRelayForwardsInOrder(t *testing.T) {
	r := New()
	cmd := r.Attach("main", feed(explain.Start(), explain.Chunk("a"), explain.Complete()), nil)

	var got []explain.EventKind
	for cmd != nil {
		msg := cmd()
		switch m := msg.(type) {
		case EventMsg:
			require.True(t, r.Current(m.Surface, m.Seq))
			got = append(got, m.Event.Kind)
			cmd = r.Next(m)
		case DoneMsg:
			r.Finish(m)
			cmd = nil
		default:
			t.Fatalf("unexpected msg %T", msg)
		}
	}

	assert.Equal(t, []explain.EventKind{explain.EventStart, explain.EventChunk, explain.EventComplete}, got)
	assert.False(t, r.Active("main"))
}

func TestAttachCancelsPrevious(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	first := r.Attach("main", feed(explain.Start()), cancel)

	r.Attach("main", feed(explain.Start()), nil)
	assert.Error(t, ctx.Err())

	msg := first().(EventMsg)
	assert.False(t, r.Current(msg.Surface, msg.Seq))
	assert.Nil(t, r.Next(msg))
}

func TestCloseDropsLateEvents(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := r.Attach("main", feed(explain.Start(), explain.Chunk("late")), cancel)

	msg := cmd().(EventMsg)
	r.Close("main")

	assert.Error(t, ctx.Err())
	assert.False(t, r.Current(msg.Surface, msg.Seq))
	assert.Nil(t, r.Next(msg))
	assert.False(t, r.Active("main"))
}

func TestSurfacesAreIndependent(t *testing.T) {
	r := New()
	a := r.Attach("a", feed(explain.Chunk("a")), nil)
	b := r.Attach("b", feed(explain.Chunk("b")), nil)

	ma := a().(EventMsg)
	mb := b().(EventMsg)
	assert.True(t, r.Current(ma.Surface, ma.Seq))
	assert.True(t, r.Current(mb.Surface, mb.Seq))

	r.CloseAll()
	assert.False(t, r.Active("a"))
	assert.False(t, r.Active("b"))
}

func TestStaleDoneIsIgnored(t *testing.T) {
	r := New()
	old := r.Attach("main", feed(), nil)
	r.Attach("main", feed(explain.Start()), nil)

	done := old().(DoneMsg)
	r.Finish(done)
	assert.True(t, r.Active("main"))
}
