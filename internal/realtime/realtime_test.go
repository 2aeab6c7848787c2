package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func TestBusDeliversOnlyToOwner(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	alice, err := bus.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer alice.Close()
	bob, err := bus.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, bus.Publish(ctx, Change{Table: "stocks", Type: Update, UserID: "alice", RecordID: "s1"}))

	got := receive(t, alice)
	assert.Equal(t, "s1", got.RecordID)
	assert.Equal(t, Update, got.Type)

	select {
	case c := <-bob.Changes():
		t.Fatalf("bob received %+v", c)
	default:
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, bus.Subscribers("alice"))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Zero(t, bus.Subscribers("alice"))

	_, ok := <-sub.Changes()
	assert.False(t, ok)

	// publishing after every subscriber left must not panic
	require.NoError(t, bus.Publish(context.Background(), Change{UserID: "alice"}))
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < bufferSize+10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Change{UserID: "alice"}))
	}
	assert.Len(t, sub.Changes(), bufferSize)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "stockmemo:changes:u1", Channel("u1"))
}

func TestOrigin(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, OriginFrom(ctx))
	assert.Equal(t, "session-1", OriginFrom(WithOrigin(ctx, "session-1")))
}
