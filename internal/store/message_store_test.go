package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridewire/dispatchsync/internal/models"
)

func driverMsg(id int64, thread models.ThreadID, body string, at time.Time) *models.Message {
	return &models.Message{
		ID:        id,
		ThreadID:  thread,
		Direction: models.DirectionFromDriver,
		Body:      body,
		CreatedAt: at,
		ReadState: models.ReadStateUnread,
	}
}

func TestAppendDuplicateDeliveryIsNoOp(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()

	require.True(t, s.Append("driver-7", driverMsg(101, "driver-7", "hello", at)))
	require.False(t, s.Append("driver-7", driverMsg(101, "driver-7", "hello again", at)))

	msgs := s.Get("driver-7")
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Body)
	require.Equal(t, 1, s.CountUnread("driver-7"))
}

func TestAppendKeepsDisplayOrder(t *testing.T) {
	s := NewMessageStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append("driver-7", driverMsg(2, "driver-7", "second", base.Add(2*time.Minute)))
	s.Append("driver-7", driverMsg(1, "driver-7", "first", base))
	s.Append("driver-7", driverMsg(3, "driver-7", "third", base.Add(5*time.Minute)))

	msgs := s.Get("driver-7")
	require.Len(t, msgs, 3)
	require.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
}

func TestAppendTimestampTieBreaksOnInsertionOrder(t *testing.T) {
	s := NewMessageStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append("driver-7", driverMsg(1, "driver-7", "a", at))
	s.Append("driver-7", driverMsg(2, "driver-7", "b", at))

	msgs := s.Get("driver-7")
	require.Equal(t, "a", msgs[0].Body)
	require.Equal(t, "b", msgs[1].Body)
}

func TestSeedSkipsKnownIDs(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()
	s.Append("driver-7", driverMsg(10, "driver-7", "live", at))

	inserted := s.Seed("driver-7", []models.Message{
		*driverMsg(9, "driver-7", "history", at.Add(-time.Hour)),
		*driverMsg(10, "driver-7", "live duplicate", at),
	})

	require.Equal(t, 1, inserted)
	msgs := s.Get("driver-7")
	require.Len(t, msgs, 2)
	require.Equal(t, "history", msgs[0].Body)
	require.Equal(t, "live", msgs[1].Body)
}

func TestResolvePendingKeepsPosition(t *testing.T) {
	s := NewMessageStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := &models.Message{
		ClientTempID:  "tmp-1",
		ThreadID:      "driver-7",
		Direction:     models.DirectionFromDispatcher,
		Body:          "on my way",
		CreatedAt:     base,
		DeliveryState: models.DeliveryStatePending,
	}
	s.Append("driver-7", pending)
	s.Append("driver-7", driverMsg(50, "driver-7", "later driver msg", base.Add(time.Minute)))

	resolved, ok := s.ResolvePending("driver-7", "tmp-1", models.MessageAck{ID: 51, CreatedAt: base})
	require.True(t, ok)
	require.Equal(t, int64(51), resolved.ID)
	require.Equal(t, models.DeliveryStateSent, resolved.DeliveryState)

	msgs := s.Get("driver-7")
	require.Equal(t, int64(51), msgs[0].ID, "resolved message must keep its list position")
}

func TestResolvePendingCollapsesEcho(t *testing.T) {
	s := NewMessageStore()
	base := time.Now().UTC()

	pending := &models.Message{
		ClientTempID:  "tmp-1",
		ThreadID:      "driver-7",
		Direction:     models.DirectionFromDispatcher,
		Body:          "on my way",
		CreatedAt:     base,
		DeliveryState: models.DeliveryStatePending,
	}
	s.Append("driver-7", pending)

	// Server echoes the message on the push channel before the send
	// response returns.
	echo := &models.Message{
		ID:            77,
		ThreadID:      "driver-7",
		Direction:     models.DirectionFromDispatcher,
		Body:          "on my way",
		CreatedAt:     base,
		DeliveryState: models.DeliveryStateSent,
	}
	s.Append("driver-7", echo)
	require.Len(t, s.Get("driver-7"), 2)

	_, ok := s.ResolvePending("driver-7", "tmp-1", models.MessageAck{ID: 77})
	require.True(t, ok)

	msgs := s.Get("driver-7")
	require.Len(t, msgs, 1, "echo must collapse into the pending entry")
	require.Equal(t, int64(77), msgs[0].ID)
}

func TestResolvePendingUnknownTempID(t *testing.T) {
	s := NewMessageStore()
	_, ok := s.ResolvePending("driver-7", "tmp-unknown", models.MessageAck{ID: 1})
	require.False(t, ok)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()
	s.Append("driver-7", driverMsg(1, "driver-7", "a", at))
	s.Append("driver-7", driverMsg(2, "driver-7", "b", at.Add(time.Second)))

	changed := s.MarkRead("driver-7", []int64{1, 2})
	require.Len(t, changed, 2)
	require.Equal(t, 0, s.CountUnread("driver-7"))

	changed = s.MarkRead("driver-7", []int64{1, 2})
	require.Empty(t, changed, "second mark must report nothing changed")
}

func TestMarkReadIgnoresUnknownAndDispatcherMessages(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()
	s.Append("driver-7", driverMsg(1, "driver-7", "a", at))
	s.Append("driver-7", &models.Message{
		ID:        2,
		ThreadID:  "driver-7",
		Direction: models.DirectionFromDispatcher,
		Body:      "ours",
		CreatedAt: at,
	})

	changed := s.MarkRead("driver-7", []int64{1, 2, 99})
	require.Len(t, changed, 1)
	require.Equal(t, int64(1), changed[0].ID)
}

func TestMarkReceipt(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()
	s.Append("driver-7", &models.Message{
		ID:        5,
		ThreadID:  "driver-7",
		Direction: models.DirectionFromDispatcher,
		Body:      "ours",
		CreatedAt: at,
	})
	s.Append("driver-7", driverMsg(6, "driver-7", "theirs", at))

	_, changed := s.MarkReceipt("driver-7", 5)
	require.True(t, changed)
	_, changed = s.MarkReceipt("driver-7", 5)
	require.False(t, changed, "receipt flag set twice must report no change")

	_, changed = s.MarkReceipt("driver-7", 6)
	require.False(t, changed, "driver messages carry no driver receipt")
}

func TestDiscardOnlyRemovesFailed(t *testing.T) {
	s := NewMessageStore()
	msg := &models.Message{
		ClientTempID:  "tmp-1",
		ThreadID:      "driver-7",
		Direction:     models.DirectionFromDispatcher,
		Body:          "draft",
		CreatedAt:     time.Now().UTC(),
		DeliveryState: models.DeliveryStatePending,
	}
	s.Append("driver-7", msg)

	require.False(t, s.Discard("driver-7", "tmp-1"), "pending messages are not discardable")

	s.SetDeliveryState("driver-7", "tmp-1", models.DeliveryStateFailed)
	require.True(t, s.Discard("driver-7", "tmp-1"))
	require.Empty(t, s.Get("driver-7"))
	require.False(t, s.Discard("driver-7", "tmp-1"))
}

func TestUnreadIDsAndThreadIDs(t *testing.T) {
	s := NewMessageStore()
	at := time.Now().UTC()
	s.Append("driver-7", driverMsg(1, "driver-7", "a", at))
	s.Append("driver-2", driverMsg(2, "driver-2", "b", at))
	s.Append(models.ThreadBroadcast, &models.Message{
		ID:        3,
		Direction: models.DirectionBroadcast,
		Body:      "fleet notice",
		CreatedAt: at,
	})

	require.Equal(t, []models.ThreadID{models.ThreadBroadcast, "driver-2", "driver-7"}, s.ThreadIDs())
	require.Equal(t, []int64{1}, s.UnreadIDs("driver-7"))
	require.Empty(t, s.UnreadIDs(models.ThreadBroadcast), "broadcast messages do not count as unread")
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewMessageStore()
	s.Append("driver-7", driverMsg(1, "driver-7", "a", time.Now().UTC()))

	msgs := s.Get("driver-7")
	msgs[0].Body = "mutated"

	require.Equal(t, "a", s.Get("driver-7")[0].Body)
}
