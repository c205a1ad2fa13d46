package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"aquaroom/internal/broadcast"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fanIn keeps the process subscribed to the channels of the rooms that have
// local connections.
type fanIn interface {
	Subscribe(roomID string)
	Unsubscribe(roomID string)
}

// subscriptionManager guarantees exactly one Redis subscription per
// "room.<id>" channel no matter how many websocket clients sit in the room.
type subscriptionManager struct {
	rdb  *redis.Client
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // roomID -> subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(rdb *redis.Client, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		rdb:  rdb,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe ensures the process is subscribed to the room's channel;
// subsequent calls for the same room only increment the ref-counter.
func (sm *subscriptionManager) Subscribe(roomID string) {
	sm.mu.Lock()
	if e, ok := sm.subs[roomID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := sm.rdb.Subscribe(ctx, broadcast.RoomChannel(roomID))

	sm.subs[roomID] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	// Wait for the SUBSCRIBE confirmation so that nothing published right
	// after a client connects is missed.
	if _, err := ps.Receive(ctx); err != nil {
		zap.L().Warn("ws.subscribe_failed", zap.String("room_id", roomID), zap.Error(err))
	}

	go func() {
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				wrapped, err := wrapRoomEvent([]byte(m.Payload))
				if err != nil {
					zap.L().Warn("ws.wrap_event_failed", zap.String("room_id", roomID), zap.Error(err))
					wrapped = []byte(m.Payload)
				}
				sm.hub.Broadcast(roomID, wrapped)
			}
		}
	}()
}

// Unsubscribe decrements the ref-counter and tears the Redis subscription
// down when the last local client leaves the room.
func (sm *subscriptionManager) Unsubscribe(roomID string) {
	sm.mu.Lock()
	e, ok := sm.subs[roomID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, roomID)
	sm.mu.Unlock()

	e.cancel()
}

// wrapRoomEvent turns
//
//	{"roomId":"r1","kind":"USER_LIST","users":[…]}
//
// into
//
//	{"event":"room/user_list","body":{"roomId":"r1","users":[…]}}
func wrapRoomEvent(payload []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	var kind string
	if v, ok := raw["kind"]; ok {
		_ = json.Unmarshal(v, &kind)
	}
	if kind == "" {
		kind = eventUnknownKind
	}
	delete(raw, "kind")

	return json.Marshal(map[string]any{
		"event": eventRoomPrefix + strings.ToLower(kind),
		"body":  raw,
	})
}
