package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcknowledger records how each delivery was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) byTag() map[uint64]settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]settlement, len(a.settled))
	for _, s := range a.settled {
		out[s.tag] = s
	}
	return out
}

type fakeConsumer struct {
	deliveries chan amqp.Delivery
	prefetch   int
	qosErr     error
}

func (c *fakeConsumer) Qos(prefetch int) error {
	c.prefetch = prefetch
	return c.qosErr
}

func (c *fakeConsumer) Consume(string) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

type fakeStore struct {
	mu       sync.Mutex
	recorded map[string]*events.Event
	failWith error
}

func (s *fakeStore) InsertConversion(_ context.Context, ev *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.recorded[ev.JobID]; ok {
		return domain.ErrDuplicateEvent
	}
	s.recorded[ev.JobID] = ev
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recorded)
}

func newEventBody(t *testing.T, jobID string) []byte {
	t.Helper()
	now := time.Now().UTC()
	body, err := json.Marshal(events.Event{
		EventID:         uuid.NewString(),
		JobID:           jobID,
		Type:            events.TypeCompleted,
		SourceReference: "https://example/v",
		OutputKind:      "audio",
		DeliveryMode:    "buffered",
		Status:          events.StatusCompleted,
		BytesDelivered:  10,
		StartedAt:       now.Add(-time.Second),
		CompletedAt:     now,
	})
	require.NoError(t, err)
	return body
}

func newTestRecorder(store ConversionStore, consumer Consumer) *Recorder {
	return NewRecorder(&Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:       store,
		Consumer:    consumer,
		WorkerID:    "recorder-test",
		Concurrency: 3,
	})
}

func TestRecorder_RecordsAndSettles(t *testing.T) {
	ack := &fakeAcknowledger{}
	consumer := &fakeConsumer{deliveries: make(chan amqp.Delivery, 8)}
	store := &fakeStore{recorded: map[string]*events.Event{}}
	rec := newTestRecorder(store, consumer)

	dupID := uuid.NewString()
	deliveries := []amqp.Delivery{
		{Acknowledger: ack, DeliveryTag: 1, Body: newEventBody(t, uuid.NewString())},
		{Acknowledger: ack, DeliveryTag: 2, Body: newEventBody(t, dupID)},
		{Acknowledger: ack, DeliveryTag: 3, Body: newEventBody(t, dupID)},
		{Acknowledger: ack, DeliveryTag: 4, Body: []byte("{garbage")},
		{Acknowledger: ack, DeliveryTag: 5, Body: []byte(`{"job_id":"not-a-uuid","type":"conversion.completed"}`)},
	}
	for _, d := range deliveries {
		consumer.deliveries <- d
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rec.Start(ctx) }()

	require.Eventually(t, func() bool { return len(ack.byTag()) == len(deliveries) }, waitFor, tick)

	settled := ack.byTag()
	assert.True(t, settled[1].ack)
	assert.True(t, settled[2].ack)
	assert.True(t, settled[3].ack, "duplicates are acknowledged, not redelivered")
	assert.False(t, settled[4].ack)
	assert.False(t, settled[4].requeue)
	assert.False(t, settled[5].ack)
	assert.False(t, settled[5].requeue)
	assert.Equal(t, 2, store.count())
	assert.Equal(t, 6, consumer.prefetch)

	cancel()
	require.NoError(t, <-done)
	rec.Stop()
}

func TestRecorder_StoreFailureRequeues(t *testing.T) {
	ack := &fakeAcknowledger{}
	consumer := &fakeConsumer{deliveries: make(chan amqp.Delivery, 1)}
	store := &fakeStore{recorded: map[string]*events.Event{}, failWith: errors.New("connection refused")}
	rec := newTestRecorder(store, consumer)

	consumer.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: newEventBody(t, uuid.NewString())}
	close(consumer.deliveries)

	require.NoError(t, rec.Start(context.Background()))
	require.Eventually(t, func() bool { return len(ack.byTag()) == 1 }, waitFor, tick)
	rec.Stop()

	settled := ack.byTag()
	require.Contains(t, settled, uint64(7))
	assert.False(t, settled[7].ack)
	assert.True(t, settled[7].requeue)
}

func TestRecorder_QosFailure(t *testing.T) {
	consumer := &fakeConsumer{qosErr: errors.New("channel closed")}
	rec := newTestRecorder(&fakeStore{}, consumer)

	err := rec.Start(context.Background())
	assert.ErrorContains(t, err, "failed to set QoS")
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: domain.NewRetryableError(errors.New("timeout")), want: true},
		{name: "wrapped retryable", err: fmt.Errorf("outer: %w", domain.NewRetryableError(errors.New("x"))), want: true},
		{name: "invalid payload", err: fmt.Errorf("%w: bad", domain.ErrInvalidPayload), want: false},
		{name: "unknown", err: errors.New("unknown"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}

func TestProcessEvent_RejectsIncompleteEvents(t *testing.T) {
	rec := newTestRecorder(&fakeStore{recorded: map[string]*events.Event{}}, &fakeConsumer{})

	err := rec.processEvent(context.Background(), &events.Event{JobID: uuid.NewString(), Type: events.TypeFailed})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
