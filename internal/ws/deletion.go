package ws

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

// DeletionPropagator removes a sender's own message from the store and tells
// everyone who could have seen it.
type DeletionPropagator struct {
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
	registry *Registry
	logger   *zap.Logger
}

// NewDeletionPropagator constructs a DeletionPropagator.
func NewDeletionPropagator(messages repositories.MessageRepository, groups repositories.GroupRepository, registry *Registry, logger *zap.Logger) *DeletionPropagator {
	return &DeletionPropagator{messages: messages, groups: groups, registry: registry, logger: logger}
}

// HandleDelete deletes one of the actor's messages. A request for a message
// the actor does not own, or that no longer exists, is a silent no-op; the
// store stays untouched either way.
func (p *DeletionPropagator) HandleDelete(ctx context.Context, actor *Client, cmd models.DeleteCommand) {
	msg, err := p.messages.DeleteOwn(ctx, cmd.ID, actor.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			p.logger.Debug("delete rejected", zap.Int("message_id", cmd.ID), zap.Int("user_id", actor.UserID))
			return
		}
		p.logger.Error("delete message", zap.Int("message_id", cmd.ID), zap.Error(err))
		actor.Enqueue(errorEvent("could not delete message"))
		return
	}

	event := models.ServerEvent{Type: models.EvtDeleted, Payload: models.DeletionNotice{ID: msg.ID, GroupID: msg.GroupID}}

	if msg.Kind == models.KindGroup && msg.GroupID != nil {
		memberIDs, err := p.groups.MemberIDs(ctx, *msg.GroupID)
		if err != nil {
			p.logger.Error("load group members for deletion broadcast", zap.Intp("group_id", msg.GroupID), zap.Error(err))
			return
		}
		for _, memberID := range memberIDs {
			if client, ok := p.registry.Resolve(memberID); ok {
				client.Enqueue(event)
			}
		}
		return
	}

	actor.Enqueue(event)
	if msg.ReceiverID != nil {
		if peer, ok := p.registry.Resolve(*msg.ReceiverID); ok {
			peer.Enqueue(event)
		}
	}
}
