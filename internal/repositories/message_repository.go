package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatrelay/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateDirect(ctx context.Context, senderID int, receiverID int, content models.MessageContent) (models.Message, error)
	CreateGroup(ctx context.Context, senderID int, groupID int, content models.MessageContent) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkDelivered(ctx context.Context, messageID int) error
	MarkSeenDirect(ctx context.Context, messageIDs []int, receiverID int, senderID int) ([]int, error)
	AddDeliveredReceipt(ctx context.Context, messageID int, userID int) error
	AddSeenReceipts(ctx context.Context, messageIDs []int, userID int) ([]int, error)
	ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) ([]models.Reaction, error)
	DeleteOwn(ctx context.Context, messageID int, senderID int) (models.Message, error)
	ListDirect(ctx context.Context, userID int, peerID int) ([]models.Message, error)
	ListGroup(ctx context.Context, groupID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, kind, sender_id, receiver_id, group_id, body, image_url, file_name, file_url, file_size, file_mime, status, created_at`

// messageRow mirrors the messages table for scanning.
type messageRow struct {
	ID         int                  `db:"id"`
	Kind       models.MessageKind   `db:"kind"`
	SenderID   int                  `db:"sender_id"`
	ReceiverID *int                 `db:"receiver_id"`
	GroupID    *int                 `db:"group_id"`
	Body       string               `db:"body"`
	ImageURL   string               `db:"image_url"`
	FileName   *string              `db:"file_name"`
	FileURL    *string              `db:"file_url"`
	FileSize   *int64               `db:"file_size"`
	FileMime   *string              `db:"file_mime"`
	Status     models.MessageStatus `db:"status"`
	CreatedAt  sql.NullTime         `db:"created_at"`
}

func (row messageRow) toMessage() models.Message {
	msg := models.Message{
		ID:         row.ID,
		Kind:       row.Kind,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		GroupID:    row.GroupID,
		Text:       row.Body,
		ImageURL:   row.ImageURL,
		Status:     row.Status,
		Reactions:  []models.Reaction{},
		CreatedAt:  row.CreatedAt.Time,
	}
	if row.FileName != nil && row.FileURL != nil {
		msg.File = &models.FileAttachment{
			FileName: *row.FileName,
			FileURL:  *row.FileURL,
		}
		if row.FileSize != nil {
			msg.File.FileSize = *row.FileSize
		}
		if row.FileMime != nil {
			msg.File.MimeType = *row.FileMime
		}
	}
	return msg
}

func fileColumns(content models.MessageContent) (name, url, mime *string, size *int64) {
	if content.File == nil {
		return nil, nil, nil, nil
	}
	return &content.File.FileName, &content.File.FileURL, &content.File.MimeType, &content.File.FileSize
}

// CreateDirect persists a direct message with status sent.
func (r *MessageRepo) CreateDirect(ctx context.Context, senderID int, receiverID int, content models.MessageContent) (models.Message, error) {
	name, url, mime, size := fileColumns(content)
	var row messageRow
	err := r.db.GetContext(ctx, &row, `INSERT INTO messages (kind, sender_id, receiver_id, body, image_url, file_name, file_url, file_size, file_mime)
        VALUES ('direct', $1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+messageColumns, senderID, receiverID, content.Text, content.ImageURL, name, url, size, mime)
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// CreateGroup persists a group message and advances the group's last-message
// pointer and activity timestamp in the same transaction, so concurrent
// senders cannot leave the two out of step.
func (r *MessageRepo) CreateGroup(ctx context.Context, senderID int, groupID int, content models.MessageContent) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	name, url, mime, size := fileColumns(content)
	var row messageRow
	if err = tx.GetContext(ctx, &row, `INSERT INTO messages (kind, sender_id, group_id, body, image_url, file_name, file_url, file_size, file_mime)
        VALUES ('group', $1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+messageColumns, senderID, groupID, content.Text, content.ImageURL, name, url, size, mime); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE groups SET last_message_id=$1, last_activity=NOW() WHERE id=$2`, row.ID, groupID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// GetMessage retrieves a single message with its reactions and receipts.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{row.toMessage()}
	if err := r.attachExtras(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// MarkDelivered promotes a direct message from sent to delivered. The status
// guard keeps seen from ever regressing.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET status='delivered' WHERE id=$1 AND status='sent'`, messageID)
	return err
}

// MarkSeenDirect bulk-updates direct messages to seen, restricted to messages
// addressed to the acknowledger from the named peer. Returns the ids that
// actually changed.
func (r *MessageRepo) MarkSeenDirect(ctx context.Context, messageIDs []int, receiverID int, senderID int) ([]int, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var updated []int
	err := r.db.SelectContext(ctx, &updated, `UPDATE messages SET status='seen'
        WHERE id = ANY($1) AND kind='direct' AND receiver_id=$2 AND sender_id=$3 AND status <> 'seen'
        RETURNING id`, pq.Array(messageIDs), receiverID, senderID)
	return updated, err
}

// AddDeliveredReceipt records one member's delivery receipt on a group message.
func (r *MessageRepo) AddDeliveredReceipt(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_receipts (message_id, user_id, kind)
        VALUES ($1, $2, 'delivered') ON CONFLICT DO NOTHING`, messageID, userID)
	return err
}

// AddSeenReceipts records seen receipts for group messages, skipping the
// acknowledger's own messages. Re-acknowledging is a no-op; only ids newly
// marked are returned.
func (r *MessageRepo) AddSeenReceipts(ctx context.Context, messageIDs []int, userID int) ([]int, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var inserted []int
	err := r.db.SelectContext(ctx, &inserted, `INSERT INTO message_receipts (message_id, user_id, kind)
        SELECT m.id, $2, 'seen' FROM messages m
        WHERE m.id = ANY($1) AND m.kind='group' AND m.sender_id <> $2
        ON CONFLICT DO NOTHING
        RETURNING message_id`, pq.Array(messageIDs), userID)
	return inserted, err
}

// ToggleReaction removes the user's (emoji) reaction if present, otherwise
// adds it, and returns the message's full reaction set afterwards.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) ([]models.Reaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID); err != nil {
		return nil, err
	}
	if !exists {
		err = ErrMessageNotFound
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)`, messageID, userID, emoji); err != nil {
			return nil, err
		}
	}

	reactions := []models.Reaction{}
	if err = tx.SelectContext(ctx, &reactions, `SELECT emoji, user_id, created_at FROM message_reactions WHERE message_id=$1 ORDER BY created_at ASC`, messageID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return reactions, nil
}

// DeleteOwn removes a message if and only if the caller is its sender, and
// returns the deleted record so callers know who to notify.
func (r *MessageRepo) DeleteOwn(ctx context.Context, messageID int, senderID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `DELETE FROM messages WHERE id=$1 AND sender_id=$2 RETURNING `+messageColumns, messageID, senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// ListDirect returns the direct conversation between two users in order.
func (r *MessageRepo) ListDirect(ctx context.Context, userID int, peerID int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE kind='direct' AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        ORDER BY created_at ASC`, userID, peerID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// ListGroup returns a group's messages in order.
func (r *MessageRepo) ListGroup(ctx context.Context, groupID int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE kind='group' AND group_id=$1 ORDER BY created_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *MessageRepo) collect(ctx context.Context, rows []messageRow) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	if err := r.attachExtras(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// attachExtras loads reactions and receipts for a batch of messages with two
// queries instead of one per message.
func (r *MessageRepo) attachExtras(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(msgs))
	index := make(map[int]*models.Message, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
		index[msgs[i].ID] = &msgs[i]
	}

	type reactionRow struct {
		MessageID int `db:"message_id"`
		models.Reaction
	}
	var reactions []reactionRow
	if err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, emoji, user_id, created_at
        FROM message_reactions WHERE message_id = ANY($1) ORDER BY created_at ASC`, pq.Array(ids)); err != nil {
		return err
	}
	for _, row := range reactions {
		msg := index[row.MessageID]
		msg.Reactions = append(msg.Reactions, row.Reaction)
	}

	type receiptRow struct {
		MessageID int    `db:"message_id"`
		Kind      string `db:"kind"`
		models.Receipt
	}
	var receipts []receiptRow
	if err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, kind, user_id, recorded_at
        FROM message_receipts WHERE message_id = ANY($1) ORDER BY recorded_at ASC`, pq.Array(ids)); err != nil {
		return err
	}
	for _, row := range receipts {
		msg := index[row.MessageID]
		if row.Kind == "seen" {
			msg.SeenBy = append(msg.SeenBy, row.Receipt)
		} else {
			msg.DeliveredTo = append(msg.DeliveredTo, row.Receipt)
		}
	}
	return nil
}
