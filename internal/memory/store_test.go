package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecore/internal/commons"
)

func TestRedisStore_GetSet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, commons.NewNopLogger())

	snap := Snapshot{CallID: "call-1", Context: map[string]json.RawMessage{}}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectSet(redisKey("call-1"), raw, defaultTTL).SetVal("OK")
	require.NoError(t, store.Set(context.Background(), snap))

	mock.ExpectGet(redisKey("call-1")).SetVal(string(raw))
	got, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "call-1", got.CallID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_FallbackOnUnreachable(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, commons.NewNopLogger())

	snap := Snapshot{CallID: "call-2", Context: map[string]json.RawMessage{}}
	raw, _ := json.Marshal(snap)
	mock.ExpectSet(redisKey("call-2"), raw, defaultTTL).SetErr(assert.AnError)

	// Set still succeeds from the caller's perspective (write is
	// best-effort for the fallback path too).
	require.NoError(t, store.Set(context.Background(), snap))

	mock.ExpectGet(redisKey("call-2")).SetErr(assert.AnError)
	got, err := store.Get(context.Background(), "call-2")
	require.NoError(t, err)
	require.NotNil(t, got, "fallback cache should serve the last-known snapshot")
	assert.Equal(t, "call-2", got.CallID)
}

func TestAsyncStore_SetDoesNotBlock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	inner := NewRedisStore(client, commons.NewNopLogger())
	async := NewAsyncStore(inner, commons.NewNopLogger())

	snap := Snapshot{CallID: "call-3", Context: map[string]json.RawMessage{}}
	raw, _ := json.Marshal(snap)
	mock.ExpectSet(redisKey("call-3"), raw, defaultTTL).SetVal("OK")

	start := time.Now()
	async.Set(snap)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// Give the background goroutine a moment to complete before the mock
	// assertions are checked.
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}
