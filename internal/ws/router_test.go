package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/mocks"
	"chatrelay/internal/models"
)

func intPtr(v int) *int { return &v }

func TestSendDirectPeerOnline(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	peer := newTestClient(2, "b")
	registry.Register(sender)
	registry.Register(peer)
	drain(sender)
	drain(peer)

	stored := models.Message{ID: 10, Kind: models.KindDirect, SenderID: 1, ReceiverID: intPtr(2), Text: "hi", Status: models.StatusSent}
	messages.On("CreateDirect", mock.Anything, 1, 2, models.MessageContent{Text: "hi"}).Return(stored, nil)
	messages.On("MarkDelivered", mock.Anything, 10).Return(nil)

	router.HandleSend(context.Background(), sender, models.SendCommand{To: intPtr(2), Text: "hi", TempID: "tmp-1"})

	ack := takeEvent(t, sender)
	require.Equal(t, models.EvtDelivered, ack.Type)
	var acked models.Message
	require.NoError(t, json.Unmarshal(ack.Payload, &acked))
	require.Equal(t, 10, acked.ID)
	require.Equal(t, "tmp-1", acked.TempID)

	pushed := takeEvent(t, peer)
	require.Equal(t, models.EvtMessage, pushed.Type)
	var delivered models.Message
	require.NoError(t, json.Unmarshal(pushed.Payload, &delivered))
	require.Equal(t, 10, delivered.ID)
	require.Empty(t, delivered.TempID)

	messages.AssertExpectations(t)
}

func TestSendDirectPeerOffline(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	registry.Register(sender)
	drain(sender)

	stored := models.Message{ID: 11, Kind: models.KindDirect, SenderID: 1, ReceiverID: intPtr(2), Text: "hi", Status: models.StatusSent}
	messages.On("CreateDirect", mock.Anything, 1, 2, mock.Anything).Return(stored, nil)

	router.HandleSend(context.Background(), sender, models.SendCommand{To: intPtr(2), Text: "hi"})

	ack := takeEvent(t, sender)
	require.Equal(t, models.EvtDelivered, ack.Type)

	// The message is stored and acked but never marked delivered.
	messages.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
	messages.AssertExpectations(t)
}

func TestSendEmptyContentRejected(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")

	router.HandleSend(context.Background(), sender, models.SendCommand{To: intPtr(2)})

	evt := takeEvent(t, sender)
	require.Equal(t, models.EvtError, evt.Type)
	messages.AssertNotCalled(t, "CreateDirect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMissingTargetRejected(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")

	router.HandleSend(context.Background(), sender, models.SendCommand{Text: "hi"})

	evt := takeEvent(t, sender)
	require.Equal(t, models.EvtError, evt.Type)
}

func TestSendDirectPersistFailure(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	peer := newTestClient(2, "b")
	registry.Register(sender)
	registry.Register(peer)
	drain(sender)
	drain(peer)

	messages.On("CreateDirect", mock.Anything, 1, 2, mock.Anything).Return(nil, errors.New("db down"))

	router.HandleSend(context.Background(), sender, models.SendCommand{To: intPtr(2), Text: "hi"})

	evt := takeEvent(t, sender)
	require.Equal(t, models.EvtError, evt.Type)
	assertNoEvent(t, peer)
}

func TestSendGroupNotMember(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	groups.On("IsMember", mock.Anything, 7, 1).Return(false, nil)

	router.HandleSend(context.Background(), sender, models.SendCommand{GroupID: intPtr(7), Text: "hi"})

	evt := takeEvent(t, sender)
	require.Equal(t, models.EvtError, evt.Type)
	var notice models.ErrorNotice
	require.NoError(t, json.Unmarshal(evt.Payload, &notice))
	require.Equal(t, "group not found or access denied", notice.Message)

	messages.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendGroupFanOut(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	online := newTestClient(2, "b")
	registry.Register(sender)
	registry.Register(online)
	drain(sender)
	drain(online)
	// user 3 is a member but has no connection

	stored := models.Message{ID: 20, Kind: models.KindGroup, SenderID: 1, GroupID: intPtr(7), Text: "hi", Status: models.StatusSent}
	groups.On("IsMember", mock.Anything, 7, 1).Return(true, nil)
	messages.On("CreateGroup", mock.Anything, 1, 7, models.MessageContent{Text: "hi"}).Return(stored, nil)
	groups.On("MemberIDs", mock.Anything, 7).Return([]int{1, 2, 3}, nil)
	messages.On("AddDeliveredReceipt", mock.Anything, 20, 2).Return(nil)

	router.HandleSend(context.Background(), sender, models.SendCommand{GroupID: intPtr(7), Text: "hi", TempID: "tmp-2"})

	ack := takeEvent(t, sender)
	require.Equal(t, models.EvtDelivered, ack.Type)
	var acked models.Message
	require.NoError(t, json.Unmarshal(ack.Payload, &acked))
	require.Equal(t, "tmp-2", acked.TempID)

	// The sender is a member too, so it also gets the fan-out copy.
	pushed := takeEvent(t, sender)
	require.Equal(t, models.EvtMessage, pushed.Type)

	pushed = takeEvent(t, online)
	require.Equal(t, models.EvtMessage, pushed.Type)

	// Only the reachable non-sender member gets a delivery receipt: never the
	// sender, never the offline member.
	messages.AssertNotCalled(t, "AddDeliveredReceipt", mock.Anything, 20, 1)
	messages.AssertNotCalled(t, "AddDeliveredReceipt", mock.Anything, 20, 3)
	messages.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestSendGroupFanOutSurvivesMemberLoadFailure(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	registry := NewRegistry(zap.NewNop())
	router := NewRouter(messages, groups, registry, zap.NewNop())

	sender := newTestClient(1, "a")
	registry.Register(sender)
	drain(sender)

	stored := models.Message{ID: 21, Kind: models.KindGroup, SenderID: 1, GroupID: intPtr(7), Text: "hi", Status: models.StatusSent}
	groups.On("IsMember", mock.Anything, 7, 1).Return(true, nil)
	messages.On("CreateGroup", mock.Anything, 1, 7, mock.Anything).Return(stored, nil)
	groups.On("MemberIDs", mock.Anything, 7).Return(nil, errors.New("db down"))

	router.HandleSend(context.Background(), sender, models.SendCommand{GroupID: intPtr(7), Text: "hi"})

	// The ack still goes out: the message is durable even though the live
	// fan-out was skipped.
	ack := takeEvent(t, sender)
	require.Equal(t, models.EvtDelivered, ack.Type)
	assertNoEvent(t, sender)
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
