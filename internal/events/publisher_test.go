package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridewire/dispatchsync/internal/models"
)

func testEvent(eventType models.EventType, threadID models.ThreadID) *models.Event {
	return &models.Event{
		ID:        "evt-1",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Type:      eventType,
		ThreadID:  threadID,
	}
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	p := NewInMemoryPublisher()
	var got []*models.Event
	require.NoError(t, p.Subscribe("badge", Filter{}, func(ev *models.Event) {
		got = append(got, ev)
	}))

	p.Publish(context.Background(), testEvent(models.EventTypeUnreadChanged, "driver-7"))
	require.Len(t, got, 1)
	require.Equal(t, models.EventTypeUnreadChanged, got[0].Type)
}

func TestFilterByEventType(t *testing.T) {
	p := NewInMemoryPublisher()
	var got []models.EventType
	require.NoError(t, p.Subscribe("badge", Filter{
		EventTypes: []models.EventType{models.EventTypeUnreadChanged},
	}, func(ev *models.Event) {
		got = append(got, ev.Type)
	}))

	ctx := context.Background()
	p.Publish(ctx, testEvent(models.EventTypeMessageReceived, "driver-7"))
	p.Publish(ctx, testEvent(models.EventTypeUnreadChanged, "driver-7"))

	require.Equal(t, []models.EventType{models.EventTypeUnreadChanged}, got)
}

func TestFilterByThread(t *testing.T) {
	p := NewInMemoryPublisher()
	var got int
	require.NoError(t, p.Subscribe("modal", Filter{ThreadID: "driver-7"}, func(*models.Event) {
		got++
	}))

	ctx := context.Background()
	p.Publish(ctx, testEvent(models.EventTypeMessageReceived, "driver-7"))
	p.Publish(ctx, testEvent(models.EventTypeMessageReceived, "driver-9"))

	require.Equal(t, 1, got)
}

func TestFilterMatchesChannelLevelEvents(t *testing.T) {
	f := Filter{}
	require.True(t, f.Matches(testEvent(models.EventTypeChannelOffline, "")))
	require.False(t, f.Matches(nil))

	scoped := Filter{ThreadID: "driver-7"}
	require.False(t, scoped.Matches(testEvent(models.EventTypeChannelOffline, "")))
}

func TestSubscribeValidation(t *testing.T) {
	p := NewInMemoryPublisher()
	handler := func(*models.Event) {}

	require.ErrorIs(t, p.Subscribe("", Filter{}, handler), ErrInvalidSubscriptionID)
	require.ErrorIs(t, p.Subscribe("badge", Filter{}, nil), ErrNilHandler)

	require.NoError(t, p.Subscribe("badge", Filter{}, handler))
	require.ErrorIs(t, p.Subscribe("badge", Filter{}, handler), ErrSubscriptionExists)
	require.Equal(t, 1, p.SubscriberCount())
}

func TestUnsubscribe(t *testing.T) {
	p := NewInMemoryPublisher()
	require.ErrorIs(t, p.Unsubscribe("badge"), ErrSubscriptionNotFound)

	require.NoError(t, p.Subscribe("badge", Filter{}, func(*models.Event) {}))
	require.NoError(t, p.Unsubscribe("badge"))
	require.Equal(t, 0, p.SubscriberCount())
}

type recordingRepo struct {
	created []*models.Event
}

func (r *recordingRepo) Create(_ context.Context, event *models.Event) error {
	r.created = append(r.created, event)
	return nil
}

func TestPublishPersistsToRepository(t *testing.T) {
	repo := &recordingRepo{}
	p := NewInMemoryPublisher(WithRepository(repo))

	p.Publish(context.Background(), testEvent(models.EventTypeMessageSent, "driver-7"))
	require.Len(t, repo.created, 1)

	// Nil events are dropped before persistence.
	p.Publish(context.Background(), nil)
	require.Len(t, repo.created, 1)
}

func TestCloseDropsAllSubscriptions(t *testing.T) {
	p := NewInMemoryPublisher()
	require.NoError(t, p.Subscribe("a", Filter{}, func(*models.Event) {}))
	require.NoError(t, p.Subscribe("b", Filter{}, func(*models.Event) {}))

	p.Close()
	require.Equal(t, 0, p.SubscriberCount())
}
