package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Swarm/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeDeadLetter    MessageType = "job.dead"
	MessageTypeCampaignEvent MessageType = "campaign.event"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// DeadLetterPayload — job, исчерпавший попытки или упавший с неповторяемой ошибкой.
type DeadLetterPayload struct {
	Job      domain.Job `json:"job"`
	Error    string     `json:"error"`
	Reason   string     `json:"reason"`
	FailedAt time.Time  `json:"failed_at"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует persistent сообщение в exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msgType),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msgType,
		)
		return nil
	})
}

// DeadLetter публикует job в dlq.<queue>.
func (p *Publisher) DeadLetter(ctx context.Context, job *domain.Job, reason string, cause error) error {
	payload := DeadLetterPayload{
		Job:      *job,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		payload.Error = cause.Error()
	}

	return p.Publish(ctx, ExchangeDLQ, RoutingKey(job.Queue), MessageTypeDeadLetter, payload)
}

// Broadcast публикует событие кампании в swarm.events.
func (p *Publisher) Broadcast(ctx context.Context, event domain.Event) error {
	key := EventRoutingKey(event.CampaignID.String(), string(event.Type))
	return p.Publish(ctx, ExchangeEvents, key, MessageTypeCampaignEvent, event)
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
