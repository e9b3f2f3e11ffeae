// Package events carries conversion outcomes from the API to the recorder.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/google/uuid"
)

// Type is the event type and doubles as the routing key
type Type string

const (
	TypeCompleted Type = "conversion.completed"
	TypeFailed    Type = "conversion.failed"
)

// Conversion status values
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const contentTypeJSON = "application/json"

// ErrInvalidEvent is returned when an event body cannot be accepted
var ErrInvalidEvent = errors.New("invalid conversion event")

// Event describes one finished conversion
type Event struct {
	EventID         string    `json:"event_id"`
	JobID           string    `json:"job_id"`
	Type            Type      `json:"type"`
	SourceReference string    `json:"source_reference"`
	OutputKind      string    `json:"output_kind"`
	DeliveryMode    string    `json:"delivery_mode"`
	Status          string    `json:"status"`
	BytesDelivered  int64     `json:"bytes_delivered"`
	ExitCode        *int      `json:"exit_code,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// NewEvent builds the event for a validated job. result may be nil when the
// converter never ran.
func NewEvent(spec *domain.JobSpec, result *domain.ExecutionResult, delivered int64, startedAt time.Time, err error) Event {
	ev := Event{
		EventID:         uuid.NewString(),
		JobID:           spec.ID,
		Type:            TypeCompleted,
		SourceReference: spec.SourceReference,
		OutputKind:      spec.Kind.Name,
		DeliveryMode:    string(spec.Mode),
		Status:          StatusCompleted,
		BytesDelivered:  delivered,
		StartedAt:       startedAt.UTC(),
		CompletedAt:     time.Now().UTC(),
	}
	if result != nil && result.ExitCode >= 0 {
		code := result.ExitCode
		ev.ExitCode = &code
	}
	if err != nil {
		ev.Type = TypeFailed
		ev.Status = StatusFailed
		ev.ErrorKind = domain.KindOf(err).String()
		ev.ErrorMessage = err.Error()
	}
	return ev
}

// Decode parses and checks an event body
func Decode(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if _, err := uuid.Parse(ev.JobID); err != nil {
		return nil, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidEvent, ev.JobID)
	}
	switch ev.Type {
	case TypeCompleted, TypeFailed:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
	return &ev, nil
}

// Publisher delivers conversion events
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Broker is the subset of the RabbitMQ client used for publishing
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// RabbitPublisher publishes events as JSON, routed by event type
type RabbitPublisher struct {
	broker Broker
	logger *slog.Logger
}

// NewRabbitPublisher creates a new RabbitPublisher instance
func NewRabbitPublisher(broker Broker, logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{broker: broker, logger: logger}
}

// Publish sends ev to the broker
func (p *RabbitPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, string(ev.Type), body, contentTypeJSON); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Conversion event published",
		slog.String("job_id", ev.JobID),
		slog.String("type", string(ev.Type)),
	)
	return nil
}
