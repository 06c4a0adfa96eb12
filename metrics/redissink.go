package metrics

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/redisclient"
)

// publisher is the narrow capability RedisSink needs, so this package
// does not depend on redisclient.Client's full surface.
type publisher interface {
	Publish(channel string, payload []byte) error
}

// RedisSink publishes a JSON-encoded Alert to channel on the given
// client (SPEC_FULL.md §2.1: "so multiple observers... can subscribe without
// the pool itself doing distributed coordination — this is an output
// sink, not shared pool state"). Publish failures are logged, never
// propagated, so a stalled Redis connection can't wedge the monitor.
func RedisSink(client *redisclient.Client, channel string, logger zerolog.Logger) Sink {
	logger = logger.With().Str("component", "alert_redis_sink").Logger()
	var pub publisher = client
	return func(a Alert) {
		payload, err := json.Marshal(a)
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal alert for redis sink")
			return
		}
		if err := pub.Publish(channel, payload); err != nil {
			logger.Warn().Err(err).Msg("failed to publish alert to redis")
		}
	}
}
