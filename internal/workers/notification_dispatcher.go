package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"go.uber.org/zap"
)

const (
	defaultQueueSize      = 256
	defaultDeliverTimeout = 30 * time.Second
)

// Notifier delivers a single notification event
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent) error
}

// Fanout delivers each event to every notifier in turn. A failing notifier
// does not stop the others; their errors are joined.
type Fanout []Notifier

// Notify implements Notifier
func (f Fanout) Notify(ctx context.Context, event models.NotificationEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotificationDispatcher decouples notification delivery from workflow
// transitions. Events are queued on a bounded channel and delivered by a
// single background goroutine; when the queue is full the event is dropped.
type NotificationDispatcher struct {
	notifier       Notifier
	metrics        *metrics.Metrics
	logger         *logger.Logger
	queue          chan models.NotificationEvent
	deliverTimeout time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
	stopOnce       sync.Once
}

// NewNotificationDispatcher creates a new dispatcher
func NewNotificationDispatcher(
	notifier Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
	queueSize int,
) *NotificationDispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &NotificationDispatcher{
		notifier:       notifier,
		metrics:        m,
		logger:         log,
		queue:          make(chan models.NotificationEvent, queueSize),
		deliverTimeout: defaultDeliverTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Publish enqueues an event without blocking
func (d *NotificationDispatcher) Publish(event models.NotificationEvent) {
	select {
	case <-d.stopCh:
		d.drop(event, "dispatcher stopped")
		return
	default:
	}

	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

func (d *NotificationDispatcher) drop(event models.NotificationEvent, reason string) {
	d.metrics.RecordNotificationDropped()
	d.logger.Warn("Dropping notification",
		logger.RequestID(event.RequestID),
		zap.String("event", string(event.Type)),
		zap.String("reason", reason),
	)
}

// Start starts the worker in the background
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting notification dispatcher",
		logger.Int("queue_size", cap(d.queue)),
	)

	go d.run(ctx)
}

// Stop stops accepting events, delivers what is already queued and waits for
// the worker to exit
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Stopping notification dispatcher")
		close(d.stopCh)
		<-d.doneCh
		d.logger.Info("Notification dispatcher stopped")
	})
}

// run is the main worker loop
func (d *NotificationDispatcher) run(ctx context.Context) {
	defer close(d.doneCh)

	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-d.stopCh:
			d.drain()
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain delivers queued events after Stop using a fresh context
func (d *NotificationDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, event models.NotificationEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, event); err != nil {
		d.logger.Error("Failed to deliver notification",
			logger.RequestID(event.RequestID),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
	}
}
