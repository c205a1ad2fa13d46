package broadcast

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomChannel(t *testing.T) {
	assert.Equal(t, "room.abc", RoomChannel("abc"))

	id, ok := RoomIDFromChannel("room.abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	for _, ch := range []string{"room.", "auc:abc:events", ""} {
		_, ok := RoomIDFromChannel(ch)
		assert.Falsef(t, ok, "expected %q to be rejected", ch)
	}
}

func TestRedisBroadcaster_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := NewRedisBroadcaster(db)

	payload := map[string]any{"kind": "USER_LIST", "roomId": "r1"}
	mock.ExpectPublish("room.r1", `{"kind":"USER_LIST","roomId":"r1"}`).SetVal(2)

	require.NoError(t, b.Publish(context.Background(), RoomChannel("r1"), payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBroadcaster_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := NewRedisBroadcaster(db)

	mock.ExpectPublish("room.r1", `{"kind":"CHAT"}`).SetErr(errors.New("connection refused"))

	err := b.Publish(context.Background(), RoomChannel("r1"), map[string]string{"kind": "CHAT"})
	assert.ErrorContains(t, err, "publish room.r1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBroadcaster_EncodeError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := NewRedisBroadcaster(db)

	err := b.Publish(context.Background(), RoomChannel("r1"), make(chan int))
	assert.ErrorContains(t, err, "encode room.r1 payload")
	assert.NoError(t, mock.ExpectationsWereMet())
}
