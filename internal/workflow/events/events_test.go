package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Subscribe(func(e Event) { order = append(order, "first:"+string(e.Type)) })
	r.Subscribe(func(e Event) { order = append(order, "second:"+string(e.Type)) })

	r.Publish(Event{Type: StepStarted, WorkflowID: "wf-1", Timestamp: time.Now()})
	r.Publish(Event{Type: StepCompleted, WorkflowID: "wf-1", Timestamp: time.Now()})

	require.Equal(t, []string{
		"first:stepStarted", "second:stepStarted",
		"first:stepCompleted", "second:stepCompleted",
	}, order)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	r := NewRegistry()
	r.Publish(Event{Type: StepStarted, WorkflowID: "wf-1"})

	var got []Event
	r.Subscribe(func(e Event) { got = append(got, e) })
	require.Empty(t, got)

	r.Publish(Event{Type: StepCompleted, WorkflowID: "wf-1"})
	require.Len(t, got, 1)
	require.Equal(t, StepCompleted, got[0].Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry()
	var n int
	id := r.Subscribe(func(Event) { n++ })
	r.Publish(Event{Type: StepStarted})
	r.Unsubscribe(id)
	r.Publish(Event{Type: StepCompleted})
	require.Equal(t, 1, n)
}
