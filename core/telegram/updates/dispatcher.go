package updates

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/ledger"
	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/netutil"
)

// Poller fetches updates with an offset, a batch limit and a long-poll wait.
type Poller interface {
	Poll(ctx context.Context, offset, limit int, wait time.Duration) ([]tele.Update, error)
}

// Options configure a Dispatcher. Zero values get defaults.
type Options struct {
	Poller  Poller
	Handler HandlerFunc
	// Ledger defaults to an in-memory ledger with an hour TTL.
	Ledger ledger.Ledger

	BatchLimit     int
	PollWait       time.Duration
	MaxInFlight    int
	ErrorThreshold int
	ErrorBackoff   time.Duration
	Cooldown       time.Duration
	ConflictWait   time.Duration
	HandlerTimeout time.Duration
}

func (o *Options) normalize() {
	if o.BatchLimit <= 0 || o.BatchLimit > 100 {
		o.BatchLimit = 100
	}
	if o.PollWait < 0 {
		o.PollWait = 0
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 64
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = 10
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.ConflictWait <= 0 {
		o.ConflictWait = 10 * time.Second
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	if o.Ledger == nil {
		o.Ledger = ledger.NewMemory(time.Hour)
	}
}

type job struct {
	batch  string
	update tele.Update
}

// userQueue holds the pending updates of one sender. running is set while a
// goroutine drains it.
type userQueue struct {
	jobs    []job
	running bool
}

// Dispatcher runs the poll loop.
type Dispatcher struct {
	opts Options
	sem  *semaphore.Weighted

	mu     sync.Mutex
	queues map[int64]*userQueue
	wg     sync.WaitGroup
	cursor atomic.Int64

	received   atomic.Int64
	handled    atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
	skipped    atomic.Int64
	pollErrors atomic.Int64
	inFlight   atomic.Int64

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates opts and builds a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Poller == nil {
		return nil, errors.New("updates: poller is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("updates: handler is required")
	}
	opts.normalize()
	return &Dispatcher{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxInFlight)),
		queues: make(map[int64]*userQueue),
		sleep:  sleepCtx,
	}, nil
}

// Cursor is the highest update id accepted so far.
func (d *Dispatcher) Cursor() int {
	return int(d.cursor.Load())
}

// Stats returns loop counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"updates_received":   d.received.Load(),
		"updates_handled":    d.handled.Load(),
		"updates_failed":     d.failed.Load(),
		"updates_duplicates": d.duplicates.Load(),
		"updates_skipped":    d.skipped.Load(),
		"poll_errors":        d.pollErrors.Load(),
		"in_flight":          d.inFlight.Load(),
		"cursor":             d.cursor.Load(),
	}
}

// Run polls until ctx is done, then waits for in-flight handlers to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.Info(ctx, logger.CompUpdates, "poll.start",
		slog.Int("limit", d.opts.BatchLimit),
		slog.Duration("wait", d.opts.PollWait),
		slog.Int("max_in_flight", d.opts.MaxInFlight),
	)
	failures := 0
	for ctx.Err() == nil {
		batch, err := d.opts.Poller.Poll(ctx, d.Cursor()+1, d.opts.BatchLimit, d.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			d.pollErrors.Add(1)
			var wait time.Duration
			wait, failures = d.pollBackoff(ctx, err, failures)
			if d.sleep(ctx, wait) != nil {
				break
			}
			continue
		}
		failures = 0
		if len(batch) > 0 {
			d.dispatch(ctx, batch)
		}
	}

	start := time.Now()
	d.wg.Wait()
	logger.Info(ctx, logger.CompUpdates, "poll.stop",
		slog.Int64("cursor", d.cursor.Load()),
		slog.Duration("drain", logger.Took(start)),
	)
	return nil
}

// pollBackoff picks the pause after a failed poll and returns the failure
// count to continue with.
func (d *Dispatcher) pollBackoff(ctx context.Context, err error, failures int) (time.Duration, int) {
	attrs := []slog.Attr{
		slog.Int("failures", failures),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}
	switch {
	case netutil.IsConflict(err):
		logger.Warn(ctx, logger.CompUpdates, "poll.conflict",
			append(attrs, slog.Duration("wait", d.opts.ConflictWait))...)
		return d.opts.ConflictWait, failures
	case failures >= d.opts.ErrorThreshold:
		logger.Error(ctx, logger.CompUpdates, "poll.cooldown",
			append(attrs, slog.Duration("wait", d.opts.Cooldown))...)
		return d.opts.Cooldown, 0
	}
	wait := d.opts.ErrorBackoff
	if ra, ok := netutil.RetryAfter(err); ok && ra > wait {
		wait = ra
	}
	logger.Warn(ctx, logger.CompUpdates, "poll.failed", append(attrs, slog.Duration("wait", wait))...)
	return wait, failures
}

// dispatch advances the cursor past the batch and queues every fresh update.
func (d *Dispatcher) dispatch(ctx context.Context, batch []tele.Update) {
	batchID := uuid.NewString()
	last := d.cursor.Load()
	fresh := make([]tele.Update, 0, len(batch))
	for _, u := range batch {
		if int64(u.ID) <= last {
			d.skipped.Add(1)
			logger.Warn(ctx, logger.CompUpdates, "update.out_of_order",
				slog.String("batch_id", batchID),
				slog.Int("update_id", u.ID),
				slog.Int64("cursor", last),
			)
			continue
		}
		last = int64(u.ID)
		fresh = append(fresh, u)
	}
	d.cursor.Store(last)
	d.received.Add(int64(len(fresh)))
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompUpdates, "poll.batch",
			slog.String("batch_id", batchID),
			slog.Int("count", len(batch)),
			slog.Int64("cursor", last),
		)
	}

	for _, u := range fresh {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			logger.Warn(ctx, logger.CompUpdates, "update.dropped",
				slog.String("batch_id", batchID),
				slog.Int("update_id", u.ID),
			)
			return
		}
		d.enqueue(context.WithoutCancel(ctx), job{batch: batchID, update: u})
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	key := SenderID(j.update)
	d.inFlight.Add(1)
	d.mu.Lock()
	q, ok := d.queues[key]
	if !ok {
		q = &userQueue{}
		d.queues[key] = q
	}
	q.jobs = append(q.jobs, j)
	start := !q.running
	q.running = true
	d.mu.Unlock()
	if start {
		d.wg.Add(1)
		go d.drain(ctx, key, q)
	}
}

// drain runs queued jobs of one sender in order until the queue is empty.
func (d *Dispatcher) drain(ctx context.Context, key int64, q *userQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		d.process(ctx, j)
		d.inFlight.Add(-1)
		d.sem.Release(1)
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	id := j.update.ID
	seen, err := d.opts.Ledger.Seen(ctx, id)
	if err != nil {
		logger.Warn(ctx, logger.CompLedger, "ledger.seen_failed",
			slog.Int("update_id", id),
			slog.String("err", err.Error()),
		)
	}
	if seen {
		d.duplicates.Add(1)
		logger.Info(ctx, logger.CompUpdates, "update.duplicate",
			slog.String("batch_id", j.batch),
			slog.Int("update_id", id),
		)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	err = d.run(hctx, j.update)
	cancel()
	if err != nil {
		d.failed.Add(1)
	} else {
		d.handled.Add(1)
	}
	if err := d.opts.Ledger.Mark(ctx, id); err != nil {
		logger.Warn(ctx, logger.CompLedger, "ledger.mark_failed",
			slog.Int("update_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// run calls the handler and reports an escaped panic as an error.
func (d *Dispatcher) run(ctx context.Context, u tele.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("updates: handler panicked")
			logger.Error(ctx, logger.CompUpdates, "handler.panic",
				slog.Int("update_id", u.ID),
				slog.Any("panic", r),
			)
		}
	}()
	return d.opts.Handler(ctx, u)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
