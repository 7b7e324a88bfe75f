package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu      sync.Mutex
	runs    int
	errs    int
	skipped int
}

func (m *recordingMetrics) PollObserve(_ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	if err != nil {
		m.errs++
	}
}

func (m *recordingMetrics) PollSkippedInc(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *recordingMetrics) snapshot() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, m.errs, m.skipped
}

func TestPollerRunsImmediatelyAndOnInterval(t *testing.T) {
	var calls int32
	p := New("vehicles", 10*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()

	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "no runs after Stop")
}

func TestPollerZeroIntervalRunsOnce(t *testing.T) {
	var calls int32
	p := New("once", 0, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPollerSkipsOverlappingRuns(t *testing.T) {
	var running, maxRunning int32
	release := make(chan struct{})
	m := &recordingMetrics{}

	p := New("slow", 5*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			old := atomic.LoadInt32(&maxRunning)
			if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, m, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		_, _, skipped := m.snapshot()
		return skipped >= 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, p.InFlight())
	close(release)
	p.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	assert.False(t, p.InFlight())
}

func TestPollerRecordsErrors(t *testing.T) {
	m := &recordingMetrics{}
	p := New("failing", 5*time.Millisecond, func(context.Context) error {
		return errors.New("backend down")
	}, m, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		runs, _, _ := m.snapshot()
		return runs >= 2
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	runs, errs, _ := m.snapshot()
	assert.Equal(t, runs, errs, "failures do not stop polling")
}

func TestPollerStopCancelsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	p := New("blocking", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, nil, nil)

	p.Start(context.Background())
	<-started
	p.Stop()
	assert.True(t, cancelled.Load())
}

func TestPollerStartIsIdempotent(t *testing.T) {
	var calls int32
	p := New("dup", time.Hour, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil, nil)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
