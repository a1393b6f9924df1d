package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/models"
)

func newTestClient(userID int, connID string) *Client {
	return &Client{
		UserID: userID,
		ConnID: connID,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
}

type recordedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func takeEvent(t *testing.T, c *Client) recordedEvent {
	t.Helper()
	select {
	case payload := <-c.send:
		var evt recordedEvent
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	default:
		t.Fatal("expected an event to be queued")
		return recordedEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event queued: %s", payload)
	default:
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	client := newTestClient(1, "a")

	registry.Register(client)

	resolved, ok := registry.Resolve(1)
	require.True(t, ok)
	require.Same(t, client, resolved)

	_, ok = registry.Resolve(2)
	require.False(t, ok)
}

func TestRegistrySecondConnectionSupersedes(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	first := newTestClient(1, "a")
	second := newTestClient(1, "b")

	registry.Register(first)
	registry.Register(second)

	resolved, ok := registry.Resolve(1)
	require.True(t, ok)
	require.Same(t, second, resolved)
}

func TestRegistryStaleUnregisterKeepsCurrent(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	first := newTestClient(1, "a")
	second := newTestClient(1, "b")

	registry.Register(first)
	registry.Register(second)

	// The first connection's read loop dies late and tries to clean up.
	require.False(t, registry.Unregister(first))

	resolved, ok := registry.Resolve(1)
	require.True(t, ok)
	require.Same(t, second, resolved)

	require.True(t, registry.Unregister(second))
	_, ok = registry.Resolve(1)
	require.False(t, ok)
}

func TestRegistryBroadcastsPresence(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	watcher := newTestClient(1, "a")
	registry.Register(watcher)
	takeEvent(t, watcher) // own online notification

	joining := newTestClient(2, "b")
	registry.Register(joining)

	evt := takeEvent(t, watcher)
	require.Equal(t, models.EvtPresence, evt.Type)
	var update models.PresenceUpdate
	require.NoError(t, json.Unmarshal(evt.Payload, &update))
	require.Equal(t, 2, update.UserID)
	require.True(t, update.Online)

	registry.Unregister(joining)
	evt = takeEvent(t, watcher)
	require.NoError(t, json.Unmarshal(evt.Payload, &update))
	require.Equal(t, 2, update.UserID)
	require.False(t, update.Online)
}

func TestRegistryOnlineIDs(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(newTestClient(1, "a"))
	registry.Register(newTestClient(2, "b"))

	ids := registry.OnlineIDs()
	require.ElementsMatch(t, []int{1, 2}, ids)
}

func TestClientDropsWhenBufferFull(t *testing.T) {
	client := &Client{
		UserID: 1,
		ConnID: "a",
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}

	require.True(t, client.Enqueue(models.ServerEvent{Type: models.EvtTyping}))
	require.False(t, client.Enqueue(models.ServerEvent{Type: models.EvtTyping}))

	select {
	case <-client.done:
	default:
		t.Fatal("expected client to be closed after overflowing its buffer")
	}
}
