package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_ReplaysRetainedEventsToNewSubscribers(t *testing.T) {
	bus := New()
	bus.Publish(Event{Kind: KindOpening, Subject: "primary/app"})
	bus.Publish(Event{Kind: KindSuccess, Subject: "primary/app", Message: "PostgreSQL 15.4"})

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	first := <-events
	second := <-events
	assert.Equal(t, KindOpening, first.Kind)
	assert.Equal(t, KindSuccess, second.Kind)
	assert.Equal(t, "PostgreSQL 15.4", second.Message)
}

func TestBus_LiveEventsAfterReplay(t *testing.T) {
	bus := New()
	bus.Publish(Event{Kind: KindOpening, Subject: "primary/app"})

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	<-events

	bus.Publish(Event{Kind: KindDormant, Subject: "primary/app"})
	live := <-events
	assert.Equal(t, KindDormant, live.Kind)
}

func TestBus_PublishStampsIDAndTime(t *testing.T) {
	bus := New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Event{Kind: KindFailure, Subject: "primary/app", Message: "dial refused"})

	e := <-events
	require.NotEmpty(t, e.ID)
	assert.False(t, e.Time.IsZero())
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	events, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
}

func TestBus_RetainedRingIsBounded(t *testing.T) {
	bus := New()
	for i := 0; i < defaultReplayLimit+10; i++ {
		bus.Publish(Event{Kind: KindUnstable, Subject: "primary/app"})
	}

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	var replayed int
	for {
		select {
		case <-events:
			replayed++
			continue
		default:
		}
		break
	}
	assert.Equal(t, defaultReplayLimit, replayed)
}
