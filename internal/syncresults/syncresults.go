package syncresults

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aquaroom/internal/services/results"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	stream       = "game_results_stream"
	payloadField = "payload"
	streamMaxLen = 10000
)

// StreamStore queues finished rounds on a Redis stream; Run drains the
// stream into the durable store, so a slow database never holds up the end
// of a round.
type StreamStore struct {
	rdc *redis.Client
}

var _ results.Store = (*StreamStore)(nil)

func NewStreamStore(rdc *redis.Client) *StreamStore {
	return &StreamStore{rdc: rdc}
}

func (s *StreamStore) SaveResult(ctx context.Context, r results.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	err = s.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue result of %s: %w", r.RoomID, err)
	}
	return nil
}

// Run tails the result stream and archives every round, starting with
// whatever an earlier process left behind.
func Run(ctx context.Context, rdc *redis.Client, store results.Store) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncresults.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			persist(ctx, store, entries)
			lastID = entries[len(entries)-1].ID

			// drained entries leave the stream; a restart resumes with the rest
			ids := make([]string, len(entries))
			for i, m := range entries {
				ids[i] = m.ID
			}
			if err := rdc.XDel(ctx, stream, ids...).Err(); err != nil {
				zap.L().Warn("syncresults.xdel", zap.Error(err))
			}
		}
	}()
}

// persist archives entries in order; entries that cannot be decoded or
// saved are logged and skipped.
func persist(ctx context.Context, store results.Store, msgs []redis.XMessage) int {
	saved := 0
	for _, m := range msgs {
		raw, _ := m.Values[payloadField].(string)
		var r results.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			zap.L().Warn("syncresults.decode", zap.String("entry_id", m.ID), zap.Error(err))
			continue
		}
		if err := store.SaveResult(ctx, r); err != nil {
			zap.L().Error("syncresults.persist", zap.String("entry_id", m.ID), zap.String("room_id", r.RoomID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}
