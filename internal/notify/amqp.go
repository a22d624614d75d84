// ABOUTME: RabbitMQ sink publishing transition alerts to a fanout exchange
// ABOUTME: Declares the exchange and an alerts queue on construction

package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/geofence/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "geofence.events"
	DefaultQueue    = "geofence_alerts"
)

// publisher is the subset of *amqp.Channel used by the sink.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes each transition as JSON.
type AMQP struct {
	ch       publisher
	exchange string
	deviceID string
}

// Dial connects to a RabbitMQ broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}

// NewAMQP opens a channel and declares exchange, queue, and binding.
// Empty names use DefaultExchange and DefaultQueue.
func NewAMQP(conn *amqp.Connection, exchange, queue, deviceID string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if queue == "" {
		queue = DefaultQueue
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQP{ch: ch, exchange: exchange, deviceID: deviceID}, nil
}

type alertMessage struct {
	TransitionID string                `json:"transition_id"`
	DeviceID     string                `json:"device_id,omitempty"`
	ZoneID       string                `json:"zone_id"`
	ZoneName     string                `json:"zone_name"`
	Category     models.Category       `json:"category"`
	Event        models.TransitionKind `json:"event"`
	Title        string                `json:"title"`
	Body         string                `json:"body"`
	Priority     Priority              `json:"priority"`
	Location     alertLocation         `json:"location"`
	Timestamp    int64                 `json:"timestamp"`
}

type alertLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *AMQP) Deliver(ctx context.Context, tr models.Transition) error {
	rendered := Compose(tr)
	msg := alertMessage{
		TransitionID: tr.ID,
		DeviceID:     p.deviceID,
		ZoneID:       tr.ZoneID,
		ZoneName:     tr.ZoneName,
		Category:     tr.ZoneCategory,
		Event:        tr.Kind,
		Title:        rendered.Title,
		Body:         rendered.Body,
		Priority:     rendered.Priority,
		Location: alertLocation{
			Latitude:  tr.Sample.Latitude,
			Longitude: tr.Sample.Longitude,
		},
		Timestamp: tr.OccurredAt,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   tr.ID,
		Body:        body,
	}); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close closes the channel. The connection belongs to the caller.
func (p *AMQP) Close() error {
	return p.ch.Close()
}
