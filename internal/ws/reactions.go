package ws

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

// ReactionManager toggles emoji reactions and broadcasts the resulting
// reaction set to everyone who can see the message.
type ReactionManager struct {
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
	registry *Registry
	logger   *zap.Logger
}

// NewReactionManager constructs a ReactionManager.
func NewReactionManager(messages repositories.MessageRepository, groups repositories.GroupRepository, registry *Registry, logger *zap.Logger) *ReactionManager {
	return &ReactionManager{messages: messages, groups: groups, registry: registry, logger: logger}
}

// HandleReact toggles the actor's (emoji) reaction on a message. Reacting to
// a message that no longer exists is a benign no-op: the message may have
// been deleted while the reaction was in flight.
func (m *ReactionManager) HandleReact(ctx context.Context, actor *Client, cmd models.ReactCommand) {
	if cmd.Emoji == "" {
		actor.Enqueue(errorEvent("reaction emoji is empty"))
		return
	}

	msg, err := m.messages.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			m.logger.Debug("reaction to missing message", zap.Int("message_id", cmd.MessageID), zap.Int("user_id", actor.UserID))
			return
		}
		m.logger.Error("load message for reaction", zap.Int("message_id", cmd.MessageID), zap.Error(err))
		actor.Enqueue(errorEvent("could not update reaction"))
		return
	}

	reactions, err := m.messages.ToggleReaction(ctx, msg.ID, actor.UserID, cmd.Emoji)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return
		}
		m.logger.Error("toggle reaction", zap.Int("message_id", msg.ID), zap.Error(err))
		actor.Enqueue(errorEvent("could not update reaction"))
		return
	}

	event := models.ServerEvent{Type: models.EvtReacted, Payload: models.ReactionUpdate{MessageID: msg.ID, Reactions: reactions}}

	if msg.Kind == models.KindGroup && msg.GroupID != nil {
		memberIDs, err := m.groups.MemberIDs(ctx, *msg.GroupID)
		if err != nil {
			m.logger.Error("load group members for reaction broadcast", zap.Intp("group_id", msg.GroupID), zap.Error(err))
			return
		}
		for _, memberID := range memberIDs {
			if client, ok := m.registry.Resolve(memberID); ok {
				client.Enqueue(event)
			}
		}
		return
	}

	// Direct: both participants, whichever of them is reachable.
	if client, ok := m.registry.Resolve(msg.SenderID); ok {
		client.Enqueue(event)
	}
	if msg.ReceiverID != nil {
		if client, ok := m.registry.Resolve(*msg.ReceiverID); ok {
			client.Enqueue(event)
		}
	}
}
