package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

const analysisExchange = "analysis_events"

// EventPublisher announces finished analyses. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event AnalysisEvent) error
}

type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string
}

func newAMQPPublisher(url string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		analysisExchange, // name
		"topic",          // kind
		true,             // durable
		false,            // auto-delete
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &amqpPublisher{conn: conn, exchange: analysisExchange}, nil
}

func (p *amqpPublisher) Publish(_ context.Context, event AnalysisEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("analysis.%s", event.OwnerID)

	return ch.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.Timestamp,
			Body:        body,
		},
	)
}

func (p *amqpPublisher) Close() error {
	return p.conn.Close()
}
