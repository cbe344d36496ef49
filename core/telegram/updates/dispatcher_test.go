package updates

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/ledger"
)

type pollResult struct {
	updates []tele.Update
	err     error
}

// scriptPoller returns scripted results, then blocks until ctx is done.
type scriptPoller struct {
	mu      sync.Mutex
	script  []pollResult
	offsets []int
	once    sync.Once
	done    chan struct{}
}

func newScript(results ...pollResult) *scriptPoller {
	return &scriptPoller{script: results, done: make(chan struct{})}
}

func (p *scriptPoller) Poll(ctx context.Context, offset, _ int, _ time.Duration) ([]tele.Update, error) {
	p.mu.Lock()
	p.offsets = append(p.offsets, offset)
	if len(p.script) == 0 {
		p.mu.Unlock()
		p.once.Do(func() { close(p.done) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := p.script[0]
	p.script = p.script[1:]
	p.mu.Unlock()
	return r.updates, r.err
}

func (p *scriptPoller) seenOffsets() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.offsets...)
}

func msg(id int, user int64) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{ID: id, Sender: &tele.User{ID: user}, Text: "hi"}}
}

func batch(ups ...tele.Update) pollResult { return pollResult{updates: ups} }

// runUntilDrained runs d until the script is exhausted, then stops it and
// waits for Run to return.
func runUntilDrained(t *testing.T, d *Dispatcher, p *scriptPoller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("script not consumed")
	}
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

type recorder struct {
	mu  sync.Mutex
	ids []int
}

func (r *recorder) handle(_ context.Context, u tele.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, u.ID)
	return nil
}

func (r *recorder) sorted() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]int(nil), r.ids...)
	sort.Ints(out)
	return out
}

func TestNewRequiresPollerAndHandler(t *testing.T) {
	_, err := New(Options{Handler: func(context.Context, tele.Update) error { return nil }})
	assert.Error(t, err)
	_, err = New(Options{Poller: newScript()})
	assert.Error(t, err)
}

func TestCursorAdvancesAndSkipsOldIDs(t *testing.T) {
	rec := &recorder{}
	p := newScript(
		batch(msg(1, 10), msg(2, 11), msg(3, 10)),
		batch(msg(3, 10), msg(4, 12)),
	)
	d, err := New(Options{Poller: p, Handler: rec.handle})
	require.NoError(t, err)

	runUntilDrained(t, d, p)

	assert.Equal(t, []int{1, 4, 5}, p.seenOffsets())
	assert.Equal(t, []int{1, 2, 3, 4}, rec.sorted())
	assert.Equal(t, 4, d.Cursor())
	stats := d.Stats()
	assert.Equal(t, int64(1), stats["updates_skipped"])
	assert.Equal(t, int64(4), stats["updates_handled"])
	assert.Equal(t, int64(0), stats["in_flight"])
}

func TestSameUserIsSerializedAndUsersRunInParallel(t *testing.T) {
	const perUser = 10
	users := []int64{1, 2, 3}

	var (
		mu        sync.Mutex
		order     = map[int64][]int{}
		active    = map[int64]*atomic.Int32{}
		overlap   = map[int64]bool{}
		otherUser = make(chan struct{})
		signal    sync.Once
		parallel  atomic.Bool
	)
	for _, u := range users {
		active[u] = &atomic.Int32{}
	}

	handler := func(_ context.Context, u tele.Update) error {
		uid := u.Message.Sender.ID
		if active[uid].Add(1) > 1 {
			mu.Lock()
			overlap[uid] = true
			mu.Unlock()
		}
		defer active[uid].Add(-1)

		switch {
		case uid == 1 && u.ID == 1:
			select {
			case <-otherUser:
				parallel.Store(true)
			case <-time.After(2 * time.Second):
			}
		case uid == 2:
			signal.Do(func() { close(otherUser) })
		}
		time.Sleep(time.Millisecond)

		mu.Lock()
		order[uid] = append(order[uid], u.ID)
		mu.Unlock()
		return nil
	}

	var ups []tele.Update
	id := 0
	for i := 0; i < perUser; i++ {
		for _, u := range users {
			id++
			ups = append(ups, msg(id, u))
		}
	}
	p := newScript(batch(ups...))
	d, err := New(Options{Poller: p, Handler: handler, MaxInFlight: 8})
	require.NoError(t, err)

	runUntilDrained(t, d, p)

	assert.True(t, parallel.Load(), "different users should run concurrently")
	for _, u := range users {
		assert.False(t, overlap[u], "user %d ran concurrently", u)
		require.Len(t, order[u], perUser)
		assert.True(t, sort.IntsAreSorted(order[u]), "user %d order %v", u, order[u])
	}
}

func TestLedgerSkipsProcessedUpdates(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory(time.Hour)
	require.NoError(t, led.Mark(ctx, 5))

	rec := &recorder{}
	p := newScript(batch(msg(5, 1), msg(6, 1)))
	d, err := New(Options{Poller: p, Handler: rec.handle, Ledger: led})
	require.NoError(t, err)

	runUntilDrained(t, d, p)

	assert.Equal(t, []int{6}, rec.sorted())
	assert.Equal(t, int64(1), d.Stats()["updates_duplicates"])
	seen, err := led.Seen(ctx, 6)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPollErrorsBackOffAndCoolDown(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	conflict := &tele.Error{Code: 409, Description: "Conflict: terminated by other getUpdates request"}
	p := newScript(
		pollResult{err: boom},
		pollResult{err: boom},
		pollResult{err: boom},
		pollResult{err: conflict},
		pollResult{err: boom},
	)
	d, err := New(Options{
		Poller:         p,
		Handler:        func(context.Context, tele.Update) error { return nil },
		ErrorThreshold: 3,
		ErrorBackoff:   time.Second,
		Cooldown:       30 * time.Second,
		ConflictWait:   10 * time.Second,
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	d.sleep = func(_ context.Context, w time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, w)
		return nil
	}

	runUntilDrained(t, d, p)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{
		time.Second,
		time.Second,
		30 * time.Second,
		10 * time.Second,
		time.Second,
	}, waits)
	assert.Equal(t, int64(5), d.Stats()["poll_errors"])
}

func TestShutdownDrainsInFlightHandlers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	handler := func(ctx context.Context, _ tele.Update) error {
		close(started)
		<-release
		finished.Store(true)
		return ctx.Err()
	}
	p := newScript(batch(msg(1, 1)))
	d, err := New(Options{Poller: p, Handler: handler})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	<-started
	cancel()
	select {
	case <-errCh:
		t.Fatal("Run returned before the handler finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, finished.Load())
	assert.Equal(t, int64(1), d.Stats()["updates_handled"], "handler context outlives the poll loop")
}

func TestHandlerTimeoutAndPanicCountAsFailures(t *testing.T) {
	rec := &recorder{}
	handler := func(ctx context.Context, u tele.Update) error {
		switch u.ID {
		case 1:
			<-ctx.Done()
			return ctx.Err()
		case 2:
			panic("boom")
		}
		return rec.handle(ctx, u)
	}
	p := newScript(batch(msg(1, 1), msg(2, 1), msg(3, 1)))
	d, err := New(Options{Poller: p, Handler: handler, HandlerTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	runUntilDrained(t, d, p)

	assert.Equal(t, []int{3}, rec.sorted())
	stats := d.Stats()
	assert.Equal(t, int64(2), stats["updates_failed"])
	assert.Equal(t, int64(1), stats["updates_handled"])
}

func TestChainOrder(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, u tele.Update) error {
				trace = append(trace, name)
				return next(ctx, u)
			}
		}
	}
	h := Chain(func(context.Context, tele.Update) error {
		trace = append(trace, "handler")
		return nil
	}, mw("outer"), nil, mw("inner"))

	require.NoError(t, h(context.Background(), msg(1, 1)))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestKindAndSender(t *testing.T) {
	cb := tele.Update{Callback: &tele.Callback{
		Sender:  &tele.User{ID: 9},
		Message: &tele.Message{Chat: &tele.Chat{ID: -5}},
	}}
	assert.Equal(t, KindCallback, Kind(cb))
	user, chat := Sender(cb)
	require.NotNil(t, user)
	require.NotNil(t, chat)
	assert.Equal(t, int64(-5), chat.ID)
	assert.Equal(t, int64(9), SenderID(cb))

	assert.Equal(t, KindMessage, Kind(msg(1, 3)))
	assert.Equal(t, KindOther, Kind(tele.Update{}))
	assert.Equal(t, int64(0), SenderID(tele.Update{}))
}
