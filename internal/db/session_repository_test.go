package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridewire/dispatchsync/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func pendingMsg(tempID string, threadID models.ThreadID, body string, at time.Time) models.Message {
	return models.Message{
		ClientTempID:  tempID,
		ThreadID:      threadID,
		Direction:     models.DirectionFromDispatcher,
		Body:          body,
		CreatedAt:     at,
		DeliveryState: models.DeliveryStatePending,
	}
}

func TestPendingMessageRoundTrip(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SavePendingMessage(ctx, pendingMsg("tmp-a", "driver-7", "on my way", at)))
	require.NoError(t, repo.SavePendingMessage(ctx, pendingMsg("tmp-b", "driver-9", "hold position", at.Add(time.Second))))

	messages, err := repo.ListPendingMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "tmp-a", messages[0].ClientTempID)
	require.Equal(t, models.ThreadID("driver-7"), messages[0].ThreadID)
	require.Equal(t, "on my way", messages[0].Body)
	require.Equal(t, models.DirectionFromDispatcher, messages[0].Direction)
	require.Equal(t, models.DeliveryStatePending, messages[0].DeliveryState)
	require.True(t, messages[0].CreatedAt.Equal(at))
}

func TestSavePendingMessageUpsertsBody(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SavePendingMessage(ctx, pendingMsg("tmp-a", "driver-7", "draft one", at)))
	require.NoError(t, repo.SavePendingMessage(ctx, pendingMsg("tmp-a", "driver-7", "draft two", at)))

	messages, err := repo.ListPendingMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "draft two", messages[0].Body)
}

func TestSavePendingMessageRequiresTempID(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	err := repo.SavePendingMessage(context.Background(), models.Message{ThreadID: "driver-7", Body: "x"})
	require.Error(t, err)
}

func TestDeletePendingMessage(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SavePendingMessage(ctx, pendingMsg("tmp-a", "driver-7", "on my way", at)))
	require.NoError(t, repo.DeletePendingMessage(ctx, "tmp-a"))
	// Unknown ids are a no-op.
	require.NoError(t, repo.DeletePendingMessage(ctx, "tmp-a"))

	messages, err := repo.ListPendingMessages(ctx)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestMarkReadRoundTrip(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveMarkReads(ctx, "driver-7", []int64{10, 11}))
	require.NoError(t, repo.SaveMarkReads(ctx, "driver-9", []int64{12}))
	// Re-saving an id keeps the first row.
	require.NoError(t, repo.SaveMarkReads(ctx, "driver-9", []int64{10}))

	marks, err := repo.ListMarkReads(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]models.ThreadID{
		10: "driver-7",
		11: "driver-7",
		12: "driver-9",
	}, marks)

	require.NoError(t, repo.DeleteMarkReads(ctx, []int64{10, 12}))
	marks, err = repo.ListMarkReads(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]models.ThreadID{11: "driver-7"}, marks)
}

func TestMarkReadEmptySlicesAreNoOps(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveMarkReads(ctx, "driver-7", nil))
	require.NoError(t, repo.DeleteMarkReads(ctx, nil))

	marks, err := repo.ListMarkReads(ctx)
	require.NoError(t, err)
	require.Empty(t, marks)
}
