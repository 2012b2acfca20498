package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-forum-client/internal/models"
)

func newCache(t *testing.T) (TranscriptCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestNewRedisCache_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache("://bad", "p:")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisCache("redis://"+addr, "p:")
	require.Error(t, err)
}

func TestSetGet_RoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := newCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "chat:c1")
	require.NoError(t, err)
	require.False(t, ok)

	at := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)
	entry := &Entry{
		Events: []models.Event{
			{ID: "m1", AuthorID: "u1", Payload: json.RawMessage(`{"content":"hi"}`), OccurredAt: at.Add(-time.Minute)},
			{ID: "m2", AuthorID: "u2", Payload: json.RawMessage(`{"content":"yo"}`), OccurredAt: at},
		},
		SyncedAt: at,
	}
	require.NoError(t, c.Set(ctx, "chat:c1", entry, time.Hour))

	require.True(t, mr.Exists("forum:transcript:chat:c1"))
	require.Equal(t, time.Hour, mr.TTL("forum:transcript:chat:c1"))

	got, ok, err := c.Get(ctx, "chat:c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, at, got.SyncedAt)
	require.Len(t, got.Events, 2)
	require.Equal(t, "m1", got.Events[0].ID)
	require.JSONEq(t, `{"content":"yo"}`, string(got.Events[1].Payload))
	require.True(t, got.Events[1].OccurredAt.Equal(at))
}

func TestSet_Expires(t *testing.T) {
	t.Parallel()

	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "notifications:u1", &Entry{SyncedAt: time.Now()}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "notifications:u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_CorruptEntry(t *testing.T) {
	t.Parallel()

	c, mr := newCache(t)

	mr.HSet("forum:transcript:chat:c1", "ev", "not json", "at", "1")
	_, _, err := c.Get(context.Background(), "chat:c1")
	require.Error(t, err)

	mr.HSet("forum:transcript:chat:c2", "ev", "[]", "at", "x")
	_, _, err = c.Get(context.Background(), "chat:c2")
	require.Error(t, err)
}

func TestPurge_OnlyOwnPrefix(t *testing.T) {
	t.Parallel()

	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "chat:c1", &Entry{}, time.Hour))
	require.NoError(t, c.Set(ctx, "chat:c2", &Entry{}, time.Hour))
	require.NoError(t, mr.Set("other:key", "v"))

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, mr.Exists("forum:transcript:chat:c1"))
	require.True(t, mr.Exists("other:key"))
}
