package models

import "time"

// GroupRole is a member's role inside a group.
type GroupRole string

const (
	RoleMember GroupRole = "member"
	RoleAdmin  GroupRole = "admin"
)

// GroupMember is one entry in a group's member list.
type GroupMember struct {
	UserID   int       `db:"user_id" json:"userId"`
	Role     GroupRole `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// Group represents a chat group. The creator is implicitly privileged and
// can never be removed or demoted.
type Group struct {
	ID            int           `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	Description   string        `db:"description" json:"description"`
	AvatarURL     *string       `db:"avatar_url" json:"avatarUrl,omitempty"`
	CreatorID     int           `db:"creator_id" json:"createdBy"`
	LastMessageID *int          `db:"last_message_id" json:"lastMessage,omitempty"`
	LastActivity  time.Time     `db:"last_activity" json:"lastActivity"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	Members       []GroupMember `json:"members,omitempty"`
}

// HasMember reports whether the user appears in the loaded member list.
func (g Group) HasMember(userID int) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is the creator or holds the admin role.
func (g Group) IsAdmin(userID int) bool {
	if g.CreatorID == userID {
		return true
	}
	for _, m := range g.Members {
		if m.UserID == userID && m.Role == RoleAdmin {
			return true
		}
	}
	return false
}
