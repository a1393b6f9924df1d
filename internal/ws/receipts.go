package ws

import (
	"context"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

// ReceiptTracker applies bulk seen acknowledgements and tells the original
// sender, when reachable, which messages were newly seen.
type ReceiptTracker struct {
	messages repositories.MessageRepository
	registry *Registry
	logger   *zap.Logger
}

// NewReceiptTracker constructs a ReceiptTracker.
func NewReceiptTracker(messages repositories.MessageRepository, registry *Registry, logger *zap.Logger) *ReceiptTracker {
	return &ReceiptTracker{messages: messages, registry: registry, logger: logger}
}

// HandleSeen processes one seen acknowledgement from the given client.
// An empty id set or an unreachable sender is a no-op, not an error.
func (t *ReceiptTracker) HandleSeen(ctx context.Context, acker *Client, cmd models.SeenCommand) {
	if len(cmd.MessageIDs) == 0 {
		return
	}

	if cmd.GroupID != nil {
		t.seenGroup(ctx, acker, cmd)
		return
	}
	t.seenDirect(ctx, acker, cmd)
}

func (t *ReceiptTracker) seenDirect(ctx context.Context, acker *Client, cmd models.SeenCommand) {
	if cmd.From == nil {
		acker.Enqueue(errorEvent("seen acknowledgement is missing the peer"))
		return
	}

	updated, err := t.messages.MarkSeenDirect(ctx, cmd.MessageIDs, acker.UserID, *cmd.From)
	if err != nil {
		t.logger.Error("mark direct messages seen", zap.Int("user_id", acker.UserID), zap.Error(err))
		return
	}
	if len(updated) == 0 {
		return
	}

	if peer, ok := t.registry.Resolve(*cmd.From); ok {
		peer.Enqueue(models.ServerEvent{Type: models.EvtSeen, Payload: models.SeenNotice{By: acker.UserID, MessageIDs: updated}})
	}
}

func (t *ReceiptTracker) seenGroup(ctx context.Context, acker *Client, cmd models.SeenCommand) {
	// Re-acknowledging is idempotent: only ids without a prior seen receipt
	// come back, and the acknowledger's own messages are excluded.
	newlySeen, err := t.messages.AddSeenReceipts(ctx, cmd.MessageIDs, acker.UserID)
	if err != nil {
		t.logger.Error("record seen receipts", zap.Int("user_id", acker.UserID), zap.Intp("group_id", cmd.GroupID), zap.Error(err))
		return
	}
	if len(newlySeen) == 0 || cmd.From == nil {
		return
	}

	if sender, ok := t.registry.Resolve(*cmd.From); ok {
		sender.Enqueue(models.ServerEvent{Type: models.EvtSeen, Payload: models.SeenNotice{By: acker.UserID, MessageIDs: newlySeen, GroupID: cmd.GroupID}})
	}
}
