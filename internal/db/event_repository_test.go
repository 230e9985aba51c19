package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridewire/dispatchsync/internal/models"
)

func storedEvent(id string, eventType models.EventType, threadID models.ThreadID, at time.Time) *models.Event {
	return &models.Event{
		ID:        id,
		Timestamp: at,
		Type:      eventType,
		ThreadID:  threadID,
	}
}

func TestEventCreateAndGet(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	event := storedEvent("evt-1", models.EventTypeMessageReceived, "driver-7", at)
	event.Payload = json.RawMessage(`{"message":{"id":10}}`)
	require.NoError(t, repo.Create(ctx, event))

	got, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, models.EventTypeMessageReceived, got.Type)
	require.Equal(t, models.ThreadID("driver-7"), got.ThreadID)
	require.True(t, got.Timestamp.Equal(at))
	require.JSONEq(t, `{"message":{"id":10}}`, string(got.Payload))
}

func TestEventCreateFillsDefaults(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()

	event := &models.Event{Type: models.EventTypeChannelOnline}
	require.NoError(t, repo.Create(ctx, event))
	require.NotEmpty(t, event.ID)
	require.False(t, event.Timestamp.IsZero())

	got, err := repo.Get(ctx, event.ID)
	require.NoError(t, err)
	require.Empty(t, got.Payload)
}

func TestEventCreateRejectsInvalid(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()

	require.ErrorIs(t, repo.Create(ctx, nil), ErrInvalidEvent)
	require.ErrorIs(t, repo.Create(ctx, &models.Event{}), ErrInvalidEvent)
}

func TestEventGetNotFound(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestListRecentReturnsNewestOldestFirst(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := storedEvent(
			string(rune('a'+i)),
			models.EventTypeUnreadChanged,
			"driver-7",
			base.Add(time.Duration(i)*time.Minute),
		)
		require.NoError(t, repo.Create(ctx, ev))
	}

	recent, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest three, in chronological order.
	require.Equal(t, "c", recent[0].ID)
	require.Equal(t, "e", recent[2].ID)
}

func TestListByThread(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, storedEvent("a", models.EventTypeMessageReceived, "driver-7", base)))
	require.NoError(t, repo.Create(ctx, storedEvent("b", models.EventTypeMessageReceived, "driver-9", base.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, storedEvent("c", models.EventTypeUnreadChanged, "driver-7", base.Add(2*time.Second))))

	events, err := repo.ListByThread(ctx, "driver-7", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a", events[0].ID)
	require.Equal(t, "c", events[1].ID)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, storedEvent("old", models.EventTypeUnreadChanged, "driver-7", base)))
	require.NoError(t, repo.Create(ctx, storedEvent("new", models.EventTypeUnreadChanged, "driver-7", base.Add(time.Hour))))

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	_, err = repo.Get(ctx, "old")
	require.ErrorIs(t, err, ErrEventNotFound)
}
