package ws

import (
	"chatrelay/internal/models"
)

// TypingRelay forwards transient typing signals to the peer's live
// connection. Nothing is persisted or retried; a missed signal is lost and
// that is fine.
type TypingRelay struct {
	registry *Registry
}

// NewTypingRelay constructs a TypingRelay.
func NewTypingRelay(registry *Registry) *TypingRelay {
	return &TypingRelay{registry: registry}
}

// HandleTyping relays one typing signal, if the peer is reachable.
func (r *TypingRelay) HandleTyping(sender *Client, cmd models.TypingCommand) {
	peer, ok := r.registry.Resolve(cmd.To)
	if !ok {
		return
	}
	peer.Enqueue(models.ServerEvent{Type: models.EvtTyping, Payload: models.TypingNotice{From: sender.UserID, Typing: cmd.Typing}})
}
