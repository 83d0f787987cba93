package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetter — сообщение из DLQ.
type DeadLetter struct {
	MessageID string            `json:"message_id"`
	Payload   DeadLetterPayload `json:"payload"`
}

// DeadLetterReader читает DLQ через соединение.
type DeadLetterReader struct {
	conn *Connection
}

// NewDeadLetterReader создаёт DeadLetterReader.
func NewDeadLetterReader(conn *Connection) *DeadLetterReader {
	return &DeadLetterReader{conn: conn}
}

// Fetch — FetchDeadLetters поверх соединения читателя.
func (r *DeadLetterReader) Fetch(ctx context.Context, queue string, limit int, remove bool) ([]DeadLetter, error) {
	return FetchDeadLetters(ctx, r.conn, queue, limit, remove)
}

// FetchDeadLetters читает до limit сообщений из dlq.<queue>.
//
// При remove=false сообщения возвращаются в очередь (просмотр),
// при remove=true подтверждаются и удаляются (replay забирает их себе).
func FetchDeadLetters(ctx context.Context, conn *Connection, queue string, limit int, remove bool) ([]DeadLetter, error) {
	ch, err := conn.OpenChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	name := DeadLetterQueue(queue)
	var (
		out  []DeadLetter
		keep []amqp.Delivery
	)

	// возвращаемые в очередь сообщения settle-ятся в конце,
	// иначе Get выдаст их снова
	defer func() {
		for _, d := range keep {
			d.Nack(false, true)
		}
	}()

	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		d, ok, err := ch.Get(name, false)
		if err != nil {
			return out, fmt.Errorf("get from %s: %w", name, err)
		}
		if !ok {
			break
		}

		dl, err := decodeDeadLetter(d)
		if err != nil {
			// битые сообщения остаются в очереди для ручного разбора
			keep = append(keep, d)
			continue
		}

		if remove {
			if err := d.Ack(false); err != nil {
				return out, fmt.Errorf("ack dead letter: %w", err)
			}
		} else {
			keep = append(keep, d)
		}

		out = append(out, dl)
	}

	return out, nil
}

func decodeDeadLetter(d amqp.Delivery) (DeadLetter, error) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return DeadLetter{}, err
	}
	payload, err := ParsePayload[DeadLetterPayload](&msg)
	if err != nil {
		return DeadLetter{}, err
	}
	return DeadLetter{MessageID: msg.ID, Payload: payload}, nil
}
