package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest_NewerRequestSupersedesOlder(t *testing.T) {
	l := NewLatest()

	oldCtx, oldTicket := l.Begin(context.Background(), "session-1/blog")
	newCtx, newTicket := l.Begin(context.Background(), "session-1/blog")

	assert.ErrorIs(t, oldCtx.Err(), context.Canceled)
	assert.NoError(t, newCtx.Err())
	assert.Greater(t, newTicket.Epoch, oldTicket.Epoch)

	assert.True(t, l.Done(newTicket))
	assert.False(t, l.Done(oldTicket))
	assert.Zero(t, l.Pending())
}

func TestLatest_ViewsAreIndependent(t *testing.T) {
	l := NewLatest()

	ctxA, a := l.Begin(context.Background(), "a")
	_, b := l.Begin(context.Background(), "b")

	assert.NoError(t, ctxA.Err())
	assert.True(t, l.Done(a))
	assert.True(t, l.Done(b))
}

func TestRun_SlowStaleResponseIsDiscarded(t *testing.T) {
	l := NewLatest()
	started := make(chan struct{})

	type out struct {
		v   string
		err error
	}
	slow := make(chan out, 1)
	go func() {
		v, _, err := Run(context.Background(), l, "view", func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return "stale", nil
		})
		slow <- out{v, err}
	}()

	<-started
	v, _, err := Run(context.Background(), l, "view", func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	res := <-slow
	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.Empty(t, res.v)
}
