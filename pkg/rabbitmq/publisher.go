package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"clipstream/config"
)

const (
	RoutingKeyClipUploaded = "clip.uploaded"
	RoutingKeyClipDeleted  = "clip.deleted"
)

// Publisher emits clip lifecycle events on a topic exchange. A nil
// *Publisher is valid and publishes nothing, so the server runs fine
// without a broker configured.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	kind     string
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher {
	exchange := cfg.ExchangeName
	if exchange == "" {
		exchange = "clip_events"
	}
	kind := cfg.Kind
	if kind == "" {
		kind = "topic"
	}
	return &Publisher{conn: conn, exchange: exchange, kind: kind}
}

// Publish sends one event. Failures are logged, not returned: events are
// best-effort notifications and never fail the request that produced them.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) {
	if p == nil || p.conn == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", routingKey).Msg("failed to marshal event")
		return
	}

	ch, err := p.conn.Channel()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to open channel")
		return
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, p.kind, true, false, false, false, nil); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("exchange", p.exchange).Msg("failed to declare exchange")
		return
	}

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish event")
		return
	}
	zerolog.Ctx(ctx).Debug().Str("routing_key", routingKey).Msg("event published")
}
