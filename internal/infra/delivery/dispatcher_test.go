package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSink struct {
	name  string
	err   error
	block chan struct{}
	panic bool

	mu  sync.Mutex
	got []domain.ResponseID
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Deliver(ctx context.Context, r *domain.Response) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panic {
		panic("sink exploded")
	}
	f.mu.Lock()
	f.got = append(f.got, r.ID)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSink) delivered() []domain.ResponseID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ResponseID(nil), f.got...)
}

type counters struct {
	ok, failed, dropped atomic.Int64
}

func (c *counters) IncrementDeliveries()        { c.ok.Add(1) }
func (c *counters) IncrementDeliveriesFailed()  { c.failed.Add(1) }
func (c *counters) IncrementDeliveriesDropped() { c.dropped.Add(1) }

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b", err: errors.New("smtp down")}
	c := &counters{}
	d := New([]domain.Sink{a, b}, Options{Workers: 2, QueueSize: 10}, zap.NewNop(), c)

	d.Dispatch(&domain.Response{ID: "SUB_1"})
	d.Dispatch(&domain.Response{ID: "SUB_2"})
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []domain.ResponseID{"SUB_1", "SUB_2"}, a.delivered())
	assert.ElementsMatch(t, []domain.ResponseID{"SUB_1", "SUB_2"}, b.delivered())
	assert.Equal(t, int64(2), c.ok.Load())
	assert.Equal(t, int64(2), c.failed.Load())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	s := &fakeSink{name: "slow", block: block}
	c := &counters{}
	d := New([]domain.Sink{s}, Options{Workers: 1, QueueSize: 1, Timeout: time.Minute}, zap.NewNop(), c)

	// First job occupies the worker, second fills the queue.
	d.Dispatch(&domain.Response{ID: "SUB_1"})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Dispatch(&domain.Response{ID: "SUB_2"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(&domain.Response{ID: "SUB_3"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	assert.Equal(t, int64(1), c.dropped.Load())

	close(block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []domain.ResponseID{"SUB_1", "SUB_2"}, s.delivered())
}

func TestDispatcher_TimeoutAndPanicAreContained(t *testing.T) {
	slow := &fakeSink{name: "slow", block: make(chan struct{})}
	bad := &fakeSink{name: "bad", panic: true}
	c := &counters{}
	d := New([]domain.Sink{slow, bad}, Options{Workers: 2, Timeout: 20 * time.Millisecond}, zap.NewNop(), c)

	d.Dispatch(&domain.Response{ID: "SUB_1"})
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int64(2), c.failed.Load())
	assert.Empty(t, slow.delivered())
}

func TestDispatcher_DeliverNowJoinsErrors(t *testing.T) {
	ok := &fakeSink{name: "ok"}
	bad := &fakeSink{name: "bad", err: errors.New("nope")}
	d := New([]domain.Sink{ok, bad}, Options{}, zap.NewNop(), nil)
	defer d.Close(context.Background())

	err := d.DeliverNow(context.Background(), &domain.Response{ID: "SUB_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []domain.ResponseID{"SUB_1"}, ok.delivered())
}

func TestDispatcher_DeliverNowAppliesTimeout(t *testing.T) {
	stalled := &fakeSink{name: "stalled", block: make(chan struct{})}
	ok := &fakeSink{name: "ok"}
	d := New([]domain.Sink{stalled, ok}, Options{Timeout: 20 * time.Millisecond}, zap.NewNop(), nil)
	defer d.Close(context.Background())

	start := time.Now()
	err := d.DeliverNow(context.Background(), &domain.Response{ID: "SUB_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline exceeded")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []domain.ResponseID{"SUB_1"}, ok.delivered())
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := New(nil, Options{}, zap.NewNop(), nil)
	d.Dispatch(&domain.Response{ID: "SUB_1"})
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	s := &fakeSink{name: "a"}
	d := New([]domain.Sink{s}, Options{}, zap.NewNop(), nil)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.NotPanics(t, func() { d.Dispatch(&domain.Response{ID: "SUB_1"}) })
	assert.Empty(t, s.delivered())
}
