package models

import "encoding/json"

// Inbound command types accepted over a client connection. Anything outside
// this set is rejected at the boundary.
const (
	CmdTyping = "typing"
	CmdSend   = "message:send"
	CmdSeen   = "message:seen"
	CmdDelete = "message:delete"
	CmdReact  = "message:react"
)

// Outbound event types pushed to client connections.
const (
	EvtPresence  = "presence:update"
	EvtTyping    = "typing"
	EvtMessage   = "message:new"
	EvtDelivered = "message:delivered"
	EvtSeen      = "message:seen"
	EvtDeleted   = "message:deleted"
	EvtReacted   = "message:reacted"
	EvtError     = "error"
)

// ClientCommand is the envelope every inbound frame must parse into.
// Payload is decoded against the command type it claims.
type ClientCommand struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TypingCommand relays a transient typing signal to a direct peer.
type TypingCommand struct {
	To     int  `json:"to"`
	Typing bool `json:"typing"`
}

// SendCommand submits a new message. Exactly one of To and GroupID must be
// set; TempID is the client correlation token echoed on the delivery ack.
type SendCommand struct {
	To       *int            `json:"to,omitempty"`
	GroupID  *int            `json:"groupId,omitempty"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
	File     *FileAttachment `json:"fileAttachment,omitempty"`
	TempID   string          `json:"tempId,omitempty"`
}

// SeenCommand acknowledges a batch of messages as seen.
type SeenCommand struct {
	MessageIDs []int `json:"messageIds"`
	From       *int  `json:"from,omitempty"`
	GroupID    *int  `json:"groupId,omitempty"`
}

// DeleteCommand asks to delete one of the caller's own messages.
type DeleteCommand struct {
	ID      int  `json:"id"`
	To      *int `json:"to,omitempty"`
	GroupID *int `json:"groupId,omitempty"`
}

// ReactCommand toggles the caller's emoji reaction on a message.
type ReactCommand struct {
	MessageID int    `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ServerEvent is the envelope for every outbound frame.
type ServerEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// PresenceUpdate announces a reachability change.
type PresenceUpdate struct {
	UserID int  `json:"userId"`
	Online bool `json:"online"`
}

// TypingNotice is the relay output of a TypingCommand.
type TypingNotice struct {
	From   int  `json:"from"`
	Typing bool `json:"typing"`
}

// SeenNotice tells the original sender which messages were newly seen.
type SeenNotice struct {
	By         int   `json:"by"`
	MessageIDs []int `json:"messageIds"`
	GroupID    *int  `json:"groupId,omitempty"`
}

// DeletionNotice tells affected parties a message is gone.
type DeletionNotice struct {
	ID      int  `json:"id"`
	GroupID *int `json:"groupId,omitempty"`
}

// ReactionUpdate broadcasts a message's full reaction set after a toggle.
type ReactionUpdate struct {
	MessageID int        `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// ErrorNotice reports a request-local failure to the originating client.
type ErrorNotice struct {
	Message string `json:"message"`
}
