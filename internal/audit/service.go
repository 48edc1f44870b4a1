package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/zenithcart/checkout/internal/kafka"
	"github.com/zenithcart/checkout/internal/orders"
	"github.com/zenithcart/checkout/internal/redisx"
)

type orderRef struct {
	OrderID string `json:"order_id"`
}

// Service consumes every checkout lifecycle topic and persists the events
// into order_events, the durable audit trail of stock and order movements.
type Service struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Log   *zap.Logger
}

// HandleEvent is mounted as the consumer handler for all topics. Redis
// dedup absorbs redeliveries cheaply; the primary key on event_id is the
// durable guarantee.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Malformed payloads are logged and committed, not retried forever.
		s.Log.Warn("unparseable event dropped",
			zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		return nil
	}
	if env.EventID == "" {
		s.Log.Warn("event without id dropped", zap.String("topic", m.Topic))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "audit", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	orderID := env.CorrelationID
	if orderID == "" {
		// Older producers did not stamp correlation_id; every payload
		// carries order_id.
		if p, err := kafkax.UnwrapPayload[orderRef](env.Payload); err == nil {
			orderID = p.OrderID
		}
	}

	_, err := s.DB.Exec(ctx, `
		INSERT INTO order_events(event_id, event_type, event_version, topic, order_id,
		                         producer, occurred_at, payload)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		env.EventID, env.EventType, env.EventVersion, m.Topic, orderID,
		env.Producer, env.OccurredAt, []byte(env.Payload))
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
