package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "room."
	publishTimeout = 2 * time.Second
)

// Broadcaster delivers a payload to every current subscriber of a channel.
// Delivery is best effort: no acknowledgement, no replay.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RoomChannel is the pub/sub channel carrying every event of one room.
func RoomChannel(roomID string) string { return channelPrefix + roomID }

// RoomIDFromChannel reverses RoomChannel.
func RoomIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RedisBroadcaster publishes JSON-encoded payloads through Redis pub/sub so
// that every websocket gateway subscribed to the room channel receives them.
type RedisBroadcaster struct {
	rdc *redis.Client
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(rdc *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdc: rdc}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	receivers, err := b.rdc.Publish(ctx, channel, string(data)).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	zap.L().Debug("broadcast.published",
		zap.String("channel", channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}
