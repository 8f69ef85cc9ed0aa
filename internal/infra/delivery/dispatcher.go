package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

// ErrDelivery wraps every sink failure. Logged, never returned to submitters.
var ErrDelivery = errors.New("delivery failed")

// Recorder receives delivery outcomes (implemented by middleware.Metrics).
type Recorder interface {
	IncrementDeliveries()
	IncrementDeliveriesFailed()
	IncrementDeliveriesDropped()
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	sink domain.Sink
	resp *domain.Response
}

// Dispatcher fans accepted responses out to sinks on a bounded worker pool.
// Dispatch never blocks: when the queue is full the delivery is dropped.
type Dispatcher struct {
	sinks   []domain.Sink
	queue   chan job
	timeout time.Duration
	log     *zap.Logger
	rec     Recorder

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(sinks []domain.Sink, opts Options, log *zap.Logger, rec Recorder) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, opts.QueueSize),
		timeout: opts.Timeout,
		log:     log,
		rec:     rec,
	}
	if len(sinks) == 0 {
		return d
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.Info("delivery dispatcher started",
		zap.Strings("sinks", names),
		zap.Int("workers", opts.Workers),
		zap.Int("queue_size", opts.QueueSize))
	return d
}

// Dispatch enqueues one delivery per sink.
func (d *Dispatcher) Dispatch(r *domain.Response) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("dispatcher closed, delivery skipped", zap.String("submission_id", string(r.ID)))
		return
	}
	for _, s := range d.sinks {
		select {
		case d.queue <- job{sink: s, resp: r}:
		default:
			d.log.Warn("delivery queue full, dropping",
				zap.String("sink", s.Name()),
				zap.String("submission_id", string(r.ID)))
			if d.rec != nil {
				d.rec.IncrementDeliveriesDropped()
			}
		}
	}
}

// DeliverNow delivers synchronously to every sink and joins the errors.
// Each sink gets its own timeout derived from ctx.
func (d *Dispatcher) DeliverNow(ctx context.Context, r *domain.Response) error {
	var errs []error
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.deliver(sctx, s, r)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting deliveries and waits for queued ones, or for ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining deliveries: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_ = d.deliver(ctx, j.sink, j.resp)
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s domain.Sink, r *domain.Response) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrDelivery, s.Name(), p)
		}
		if err != nil {
			d.log.Warn("delivery failed",
				zap.String("sink", s.Name()),
				zap.String("submission_id", string(r.ID)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			if d.rec != nil {
				d.rec.IncrementDeliveriesFailed()
			}
			return
		}
		d.log.Debug("delivered",
			zap.String("sink", s.Name()),
			zap.String("submission_id", string(r.ID)),
			zap.Duration("duration", time.Since(start)))
		if d.rec != nil {
			d.rec.IncrementDeliveries()
		}
	}()

	if err := s.Deliver(ctx, r); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDelivery, s.Name(), err)
	}
	return nil
}
