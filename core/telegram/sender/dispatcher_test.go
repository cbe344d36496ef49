package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	d := NewDispatcher(opts)
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(d.Close)
	return d
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := newTestDispatcher(t, Options{MaxRetries: 2, Workers: 1})

	var calls int
	err := d.Do(context.Background(), "send", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestDoStopsOnPermanentError(t *testing.T) {
	d := newTestDispatcher(t, Options{MaxRetries: 5, Workers: 1})

	permanent := errors.New("telegram: Bad Request: chat not found (400)")
	var calls int
	err := d.Do(context.Background(), "send", "sendMessage", func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDoHonoursCanceledContext(t *testing.T) {
	d := newTestDispatcher(t, Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called bool
	err := d.Do(ctx, "send", "", func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestEnqueueRunsInBackground(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(context.Background(), "notify", "", func() error {
			ran.Add(1)
			return nil
		}))
	}
	d.Close()
	assert.Equal(t, int32(5), ran.Load())

	err := d.Enqueue(context.Background(), "notify", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueSurvivesCallerCancel(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	require.NoError(t, d.Enqueue(ctx, "notify", "", func() error {
		close(done)
		return nil
	}))
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued job did not run")
	}
	d.Close()
}

func TestSanitizeErrorRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_1/sendMessage": dial tcp: timeout`)
	msg := SanitizeError(err)
	assert.NotContains(t, msg, "ABC-def_1")
	assert.Contains(t, msg, "bot<redacted>")
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, "dial", ClassifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "http_4xx", ClassifyError(errors.New("telegram: Forbidden (403)")))
	assert.Equal(t, "http_5xx", ClassifyError(errors.New("telegram: Bad Gateway (502)")))
	assert.Equal(t, "unknown", ClassifyError(errors.New("boom")))
}
