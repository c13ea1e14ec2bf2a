package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrSuperseded = errors.New("query: superseded by a newer request")

// Latest tracks the newest request per view. Starting a request for a view
// cancels the one still in flight for it, and only the newest may publish
// its result, so a slow stale response can never overwrite a fresher one.
type Latest struct {
	epoch atomic.Uint64

	mu    sync.Mutex
	views map[string]*inflight
}

type inflight struct {
	epoch  uint64
	cancel context.CancelFunc
}

// Ticket tags one request of a view.
type Ticket struct {
	View  string
	Epoch uint64
}

func NewLatest() *Latest {
	return &Latest{views: make(map[string]*inflight)}
}

// Begin starts a request for view and returns its context and ticket.
func (l *Latest) Begin(ctx context.Context, view string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(ctx)
	t := Ticket{View: view, Epoch: l.epoch.Add(1)}

	l.mu.Lock()
	if prev, ok := l.views[view]; ok {
		prev.cancel()
	}
	l.views[view] = &inflight{epoch: t.Epoch, cancel: cancel}
	l.mu.Unlock()

	return ctx, t
}

// Done ends the request of t and reports whether it is still the newest for
// its view. Superseded results must be discarded.
func (l *Latest) Done(t Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.views[t.View]
	if !ok || cur.epoch != t.Epoch {
		return false
	}
	cur.cancel()
	delete(l.views, t.View)
	return true
}

// Pending is the number of views with a request in flight.
func (l *Latest) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.views)
}

// Run executes fn as the newest request of view. It returns ErrSuperseded
// when a newer request for the same view started before fn finished.
func Run[T any](ctx context.Context, l *Latest, view string, fn func(ctx context.Context) (T, error)) (T, Ticket, error) {
	runCtx, t := l.Begin(ctx, view)
	v, err := fn(runCtx)
	if !l.Done(t) {
		var zero T
		return zero, t, ErrSuperseded
	}
	return v, t, err
}
