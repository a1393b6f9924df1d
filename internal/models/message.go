package models

import "time"

// MessageKind discriminates direct and group messages.
type MessageKind string

const (
	KindDirect MessageKind = "direct"
	KindGroup  MessageKind = "group"
)

// MessageStatus is the delivery state of a direct message.
// Group delivery state lives in per-user receipts instead.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// FileAttachment describes a file carried by a message.
type FileAttachment struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Reaction is one user's emoji reaction on a message. Reactions form a set
// keyed by (user, emoji).
type Reaction struct {
	Emoji     string    `db:"emoji" json:"emoji"`
	UserID    int       `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Receipt records that a user received or viewed a group message.
type Receipt struct {
	UserID     int       `db:"user_id" json:"userId"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// Message is the persisted chat message. Exactly one of ReceiverID and
// GroupID is set, matching Kind.
type Message struct {
	ID          int             `json:"id"`
	Kind        MessageKind     `json:"messageType"`
	SenderID    int             `json:"senderId"`
	ReceiverID  *int            `json:"receiverId,omitempty"`
	GroupID     *int            `json:"groupId,omitempty"`
	Text        string          `json:"text,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	File        *FileAttachment `json:"fileAttachment,omitempty"`
	Status      MessageStatus   `json:"status"`
	Reactions   []Reaction      `json:"reactions"`
	SeenBy      []Receipt       `json:"seenBy,omitempty"`
	DeliveredTo []Receipt       `json:"deliveredTo,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`

	// TempID echoes the client correlation token on delivery acks.
	// Never persisted.
	TempID string `json:"tempId,omitempty"`
}

// MessageContent is the payload of a send request. At least one field must
// be populated.
type MessageContent struct {
	Text     string
	ImageURL string
	File     *FileAttachment
}

// Empty reports whether the content carries nothing at all.
func (c MessageContent) Empty() bool {
	return c.Text == "" && c.ImageURL == "" && c.File == nil
}
