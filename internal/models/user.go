package models

import "time"

// User is the persisted account record. The routing core only reads the
// identity; the rest backs the user-facing REST surface.
type User struct {
	ID         int        `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	AvatarURL  *string    `db:"avatar_url" json:"avatarUrl,omitempty"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// UserSettings holds privacy and notification preferences.
type UserSettings struct {
	ShowOnlineStatus    bool `db:"show_online_status" json:"showOnlineStatus"`
	ShowLastSeen        bool `db:"show_last_seen" json:"showLastSeen"`
	ShowReadReceipts    bool `db:"show_read_receipts" json:"showReadReceipts"`
	EnableNotifications bool `db:"enable_notifications" json:"enableNotifications"`
}
