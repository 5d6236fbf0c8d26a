package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/atvirokodosprendimai/shopfloor/internal/observability"
	"github.com/sirupsen/logrus"
)

var (
	ErrDispatcherClosed  = errors.New("change dispatcher closed")
	ErrDispatchQueueFull = errors.New("change dispatch queue full")
)

// ChangeDispatcher delivers change events to a publisher from a single
// background worker. Publish never blocks the caller; failed deliveries
// are retried with backoff and dropped after maxRetry attempts.
type ChangeDispatcher struct {
	publisher ports.ChangePublisher
	log       logrus.FieldLogger
	queue     chan domain.ChangeEvent
	maxRetry  int
	backoff   func(attempt int) time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
	started bool

	deliveredTotal atomic.Int64
	failureTotal   atomic.Int64
	droppedTotal   atomic.Int64
}

type ChangeDispatcherMetrics struct {
	DeliveredTotal int64
	FailureTotal   int64
	DroppedTotal   int64
}

var _ ports.ChangePublisher = (*ChangeDispatcher)(nil)

func NewChangeDispatcher(publisher ports.ChangePublisher, log logrus.FieldLogger, queueSize int) *ChangeDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChangeDispatcher{
		publisher: publisher,
		log:       log,
		queue:     make(chan domain.ChangeEvent, queueSize),
		maxRetry:  5,
		backoff:   backoffDuration,
	}
}

func (d *ChangeDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.started = true
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *ChangeDispatcher) Publish(_ context.Context, event domain.ChangeEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.droppedTotal.Add(1)
		observability.ObserveDispatch(observability.DispatchDropped)
		return ErrDispatchQueueFull
	}
}

// Close stops accepting events, makes one delivery attempt for whatever
// is still queued, and waits for the worker to exit.
func (d *ChangeDispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *ChangeDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *ChangeDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := d.publisher.Publish(ctx, event); err != nil {
				d.droppedTotal.Add(1)
				observability.ObserveDispatch(observability.DispatchDropped)
				d.log.WithError(err).WithField("event_id", event.EventID).Warn("drop change event on shutdown")
			} else {
				d.deliveredTotal.Add(1)
				observability.ObserveDispatch(observability.DispatchDelivered)
			}
			cancel()
		default:
			return
		}
	}
}

func (d *ChangeDispatcher) deliver(ctx context.Context, event domain.ChangeEvent) {
	for attempt := 1; ; attempt++ {
		err := d.publisher.Publish(ctx, event)
		if err == nil {
			d.deliveredTotal.Add(1)
			observability.ObserveDispatch(observability.DispatchDelivered)
			return
		}
		d.failureTotal.Add(1)

		entry := d.log.WithError(err).WithFields(logrus.Fields{"event_id": event.EventID, "attempt": attempt})
		if attempt >= d.maxRetry {
			d.droppedTotal.Add(1)
			observability.ObserveDispatch(observability.DispatchDropped)
			entry.Error("drop change event after retries")
			return
		}
		observability.ObserveDispatch(observability.DispatchRetried)
		entry.Warn("change event delivery failed, retrying")

		timer := time.NewTimer(d.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			d.requeue(event)
			return
		case <-timer.C:
		}
	}
}

// requeue puts an interrupted event back so drain can make a final
// attempt.
func (d *ChangeDispatcher) requeue(event domain.ChangeEvent) {
	select {
	case d.queue <- event:
	default:
		d.droppedTotal.Add(1)
		observability.ObserveDispatch(observability.DispatchDropped)
	}
}

func (d *ChangeDispatcher) Metrics() ChangeDispatcherMetrics {
	return ChangeDispatcherMetrics{
		DeliveredTotal: d.deliveredTotal.Load(),
		FailureTotal:   d.failureTotal.Load(),
		DroppedTotal:   d.droppedTotal.Load(),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
