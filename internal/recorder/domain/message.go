package domain

import (
	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventMessage is a decoded conversion event together with its delivery
type EventMessage struct {
	Event    *events.Event
	Delivery amqp.Delivery
}
