package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channel = "collabd:events"

// Bus publishes lifecycle audit events to Redis pub/sub. Publishing is
// best-effort: a failed publish is logged and never blocks a transition.
type Bus struct {
	rdb *redis.Client
	log *zap.Logger
	ctx context.Context
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb: rdb,
		log: log,
		ctx: context.Background(),
	}
}

// Publish emits one event with its fields onto the audit channel.
func (b *Bus) Publish(event string, fields map[string]interface{}) error {
	payload := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = event
	payload["ts"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(b.ctx, channel, data).Err(); err != nil {
		b.log.Warn("Failed to publish event", zap.String("event", event), zap.Error(err))
		return err
	}
	return nil
}
