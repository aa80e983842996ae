package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNotifier records delivered events
type mockNotifier struct {
	mu        sync.Mutex
	delivered []models.NotificationEvent
	notifyErr error
	block     chan struct{}
}

func (m *mockNotifier) Notify(ctx context.Context, event models.NotificationEvent) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, event)
	return m.notifyErr
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

func newEvent() models.NotificationEvent {
	return models.NotificationEvent{
		Type:       models.EventApproved,
		RequestID:  uuid.New(),
		OccurredAt: time.Now(),
	}
}

func droppedCount(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.NotificationsDropped.Write(&out))
	return out.GetCounter().GetValue()
}

func TestNotificationDispatcher_DeliversEvents(t *testing.T) {
	notifier := &mockNotifier{}
	d := NewNotificationDispatcher(notifier, nil, logger.NewForTesting(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	for i := 0; i < 3; i++ {
		d.Publish(newEvent())
	}

	assert.Eventually(t, func() bool { return notifier.count() == 3 }, time.Second, 10*time.Millisecond)
	d.Stop()
}

func TestNotificationDispatcher_StopDrainsQueue(t *testing.T) {
	notifier := &mockNotifier{}
	d := NewNotificationDispatcher(notifier, nil, logger.NewForTesting(), 8)

	// queued before the worker starts
	for i := 0; i < 5; i++ {
		d.Publish(newEvent())
	}

	d.Start(context.Background())
	d.Stop()

	assert.Equal(t, 5, notifier.count())
}

func TestNotificationDispatcher_DropsWhenFull(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	notifier := &mockNotifier{}
	d := NewNotificationDispatcher(notifier, m, logger.NewForTesting(), 2)

	for i := 0; i < 5; i++ {
		d.Publish(newEvent())
	}

	assert.Equal(t, 3.0, droppedCount(t, m))

	d.Start(context.Background())
	d.Stop()
	assert.Equal(t, 2, notifier.count())
}

func TestNotificationDispatcher_PublishAfterStop(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	notifier := &mockNotifier{}
	d := NewNotificationDispatcher(notifier, m, logger.NewForTesting(), 2)

	d.Start(context.Background())
	d.Stop()
	d.Stop()

	d.Publish(newEvent())
	assert.Equal(t, 1.0, droppedCount(t, m))
	assert.Equal(t, 0, notifier.count())
}

func TestNotificationDispatcher_NotifierErrorDoesNotStopWorker(t *testing.T) {
	notifier := &mockNotifier{notifyErr: errors.New("smtp down")}
	d := NewNotificationDispatcher(notifier, nil, logger.NewForTesting(), 4)

	d.Start(context.Background())
	d.Publish(newEvent())
	d.Publish(newEvent())

	assert.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, 10*time.Millisecond)
	d.Stop()
}

func TestNotificationDispatcher_PublishNeverBlocks(t *testing.T) {
	notifier := &mockNotifier{block: make(chan struct{})}
	d := NewNotificationDispatcher(notifier, nil, logger.NewForTesting(), 1)
	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(newEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled notifier")
	}

	close(notifier.block)
	d.Stop()
}

func TestFanout(t *testing.T) {
	ok := &mockNotifier{}
	failing := &mockNotifier{notifyErr: errors.New("smtp down")}
	last := &mockNotifier{}

	err := Fanout{ok, failing, last}.Notify(context.Background(), newEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")

	// a failing notifier does not stop the rest
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, last.count())

	assert.NoError(t, Fanout{ok}.Notify(context.Background(), newEvent()))
	assert.NoError(t, Fanout{}.Notify(context.Background(), newEvent()))
}
