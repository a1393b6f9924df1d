package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/models"
)

func TestTypingRelayedToPeer(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	relay := NewTypingRelay(registry)

	sender := newTestClient(1, "a")
	peer := newTestClient(2, "b")
	registry.Register(sender)
	registry.Register(peer)
	drain(sender)
	drain(peer)

	relay.HandleTyping(sender, models.TypingCommand{To: 2, Typing: true})

	evt := takeEvent(t, peer)
	require.Equal(t, models.EvtTyping, evt.Type)
	var notice models.TypingNotice
	require.NoError(t, json.Unmarshal(evt.Payload, &notice))
	require.Equal(t, 1, notice.From)
	require.True(t, notice.Typing)

	relay.HandleTyping(sender, models.TypingCommand{To: 2, Typing: false})
	evt = takeEvent(t, peer)
	require.NoError(t, json.Unmarshal(evt.Payload, &notice))
	require.False(t, notice.Typing)

	// The sender never hears its own signal back.
	assertNoEvent(t, sender)
}

func TestTypingPeerOfflineDropped(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	relay := NewTypingRelay(registry)

	sender := newTestClient(1, "a")
	registry.Register(sender)
	drain(sender)

	relay.HandleTyping(sender, models.TypingCommand{To: 2, Typing: true})

	assertNoEvent(t, sender)
}
