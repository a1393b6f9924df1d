package ws

import (
	"context"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/repositories"
)

// Router receives send intents, persists them, and delivers to every
// recipient that is currently reachable. Offline recipients catch up through
// a later history fetch instead of a queue.
type Router struct {
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
	registry *Registry
	logger   *zap.Logger
}

// NewRouter constructs a Router.
func NewRouter(messages repositories.MessageRepository, groups repositories.GroupRepository, registry *Registry, logger *zap.Logger) *Router {
	return &Router{messages: messages, groups: groups, registry: registry, logger: logger}
}

// HandleSend validates and routes one send command from the given client.
func (rt *Router) HandleSend(ctx context.Context, sender *Client, cmd models.SendCommand) {
	content := models.MessageContent{Text: cmd.Text, ImageURL: cmd.ImageURL, File: cmd.File}
	if content.Empty() {
		sender.Enqueue(errorEvent("message content is empty"))
		return
	}

	switch {
	case cmd.GroupID != nil:
		rt.sendGroup(ctx, sender, *cmd.GroupID, content, cmd.TempID)
	case cmd.To != nil:
		rt.sendDirect(ctx, sender, *cmd.To, content, cmd.TempID)
	default:
		sender.Enqueue(errorEvent("message target is missing"))
	}
}

func (rt *Router) sendDirect(ctx context.Context, sender *Client, to int, content models.MessageContent, tempID string) {
	msg, err := rt.messages.CreateDirect(ctx, sender.UserID, to, content)
	if err != nil {
		rt.logger.Error("persist direct message", zap.Int("sender_id", sender.UserID), zap.Int("receiver_id", to), zap.Error(err))
		sender.Enqueue(errorEvent("could not store message"))
		return
	}
	observability.IncMessageRouted("direct")

	// The ack carries the correlation token so the sender can reconcile its
	// optimistic copy. Status is still "sent" at this point.
	ack := msg
	ack.TempID = tempID
	sender.Enqueue(models.ServerEvent{Type: models.EvtDelivered, Payload: ack})

	peer, ok := rt.registry.Resolve(to)
	if !ok {
		return
	}
	peer.Enqueue(models.ServerEvent{Type: models.EvtMessage, Payload: msg})
	if err := rt.messages.MarkDelivered(ctx, msg.ID); err != nil {
		rt.logger.Error("mark delivered", zap.Int("message_id", msg.ID), zap.Error(err))
		return
	}
	observability.IncLiveDelivery("direct")
}

func (rt *Router) sendGroup(ctx context.Context, sender *Client, groupID int, content models.MessageContent, tempID string) {
	member, err := rt.groups.IsMember(ctx, groupID, sender.UserID)
	if err != nil {
		rt.logger.Error("check group membership", zap.Int("group_id", groupID), zap.Error(err))
		sender.Enqueue(errorEvent("could not store message"))
		return
	}
	if !member {
		sender.Enqueue(errorEvent("group not found or access denied"))
		return
	}

	// Persisting the message and advancing the group's last-message pointer
	// happen in one transaction inside the repository.
	msg, err := rt.messages.CreateGroup(ctx, sender.UserID, groupID, content)
	if err != nil {
		rt.logger.Error("persist group message", zap.Int("sender_id", sender.UserID), zap.Int("group_id", groupID), zap.Error(err))
		sender.Enqueue(errorEvent("could not store message"))
		return
	}
	observability.IncMessageRouted("group")

	ack := msg
	ack.TempID = tempID
	sender.Enqueue(models.ServerEvent{Type: models.EvtDelivered, Payload: ack})

	memberIDs, err := rt.groups.MemberIDs(ctx, groupID)
	if err != nil {
		// The message is stored and acked; members will see it on their next
		// history fetch.
		rt.logger.Error("load group members for fan-out", zap.Int("group_id", groupID), zap.Error(err))
		return
	}

	// O(members) fan-out per event, no batching. Fine at this scale.
	for _, memberID := range memberIDs {
		client, ok := rt.registry.Resolve(memberID)
		if !ok {
			continue
		}
		client.Enqueue(models.ServerEvent{Type: models.EvtMessage, Payload: msg})
		if memberID == sender.UserID {
			continue
		}
		if err := rt.messages.AddDeliveredReceipt(ctx, msg.ID, memberID); err != nil {
			rt.logger.Error("record delivery receipt", zap.Int("message_id", msg.ID), zap.Int("user_id", memberID), zap.Error(err))
			continue
		}
		observability.IncLiveDelivery("group")
	}
}
