package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/channels/gochannel"
	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/events"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewStdLogger(false, false))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	defer func() { _ = bus.Close() }()

	received := make(chan *events.RunTriggered, 1)

	err = bus.Handle(events.RunTriggeredEvent, func(ctx context.Context, event any) error {
		triggered, ok := event.(*events.RunTriggered)
		require.True(t, ok)

		received <- triggered

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.RunTriggered{
		BaseEvent: events.BaseEvent{
			Type:       events.RunTriggeredEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
			OwnerID:    "owner-1",
		},
		RunID:       "run-1",
		TriggerType: "invoice.created",
		EntityID:    "invoice-42",
	}

	require.NoError(t, bus.Publish(ctx, "run-1", event))

	select {
	case triggered := <-received:
		assert.Equal(t, "run-1", triggered.RunID)
		assert.Equal(t, "wf-1", triggered.WorkflowID)
		assert.Equal(t, "invoice-42", triggered.EntityID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewStdLogger(false, false))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	defer func() { _ = bus.Close() }()

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
