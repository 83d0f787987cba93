package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	// ExchangeDLQ — dead letters jobs, routing key = имя очереди брокера.
	ExchangeDLQ Exchange = "swarm.dlq"

	// ExchangeEvents — realtime-события кампаний, routing key = campaign.<id>.<type>.
	ExchangeEvents Exchange = "swarm.events"
)

// DeadLetterQueue возвращает имя DLQ для очереди брокера.
func DeadLetterQueue(queue string) string {
	return "dlq." + queue
}

// EventRoutingKey возвращает routing key события кампании.
func EventRoutingKey(campaignID, eventType string) RoutingKey {
	return RoutingKey(fmt.Sprintf("campaign.%s.%s", campaignID, eventType))
}

// AllEventsBinding — binding key для всех событий кампаний.
const AllEventsBinding RoutingKey = "campaign.#"

// SetupTopology объявляет exchanges и DLQ для перечисленных очередей брокера.
func SetupTopology(ctx context.Context, conn *Connection, queues ...string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		return declareDeadLetterQueues(ch, queues)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeDLQ, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareDeadLetterQueues создаёт durable dlq.<queue> и привязывает к swarm.dlq.
func declareDeadLetterQueues(ch *amqp.Channel, queues []string) error {
	for _, q := range queues {
		name := DeadLetterQueue(q)

		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		if err := ch.QueueBind(name, q, string(ExchangeDLQ), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", name, ExchangeDLQ, err)
		}
	}

	return nil
}

// DeclareEventQueue создаёт exclusive очередь с именем от сервера,
// привязанную к swarm.events по bindingKey. Очередь живёт, пока жив канал.
func DeclareEventQueue(ch *amqp.Channel, bindingKey RoutingKey) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare event queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, string(bindingKey), string(ExchangeEvents), false, nil); err != nil {
		return "", fmt.Errorf("bind event queue: %w", err)
	}

	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Swarm RabbitMQ Topology:

    swarm.dlq (direct)
    ├── dlq.trades         [routing: trades]
    ├── dlq.distributions  [routing: distributions]
    └── dlq.webhooks       [routing: webhooks]
            Manual inspection / replay (swarm dlq ...)

    swarm.events (topic)
    └── amq.gen-*          [routing: campaign.#]
            Consumer: realtime hub (one exclusive queue per API instance)
  `
}
