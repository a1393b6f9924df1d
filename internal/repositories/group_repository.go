package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chatrelay/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// ErrCreatorImmutable is returned when an operation would remove or demote
// the group's creator.
var ErrCreatorImmutable = errors.New("group creator cannot be removed or demoted")

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name string, description string, memberIDs []int) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	MemberIDs(ctx context.Context, groupID int) ([]int, error)
	UpdateGroup(ctx context.Context, groupID int, name string, description string) error
	AddMember(ctx context.Context, groupID int, userID int) error
	RemoveMember(ctx context.Context, groupID int, userID int) error
	SetMemberRole(ctx context.Context, groupID int, userID int, role models.GroupRole) error
	Leave(ctx context.Context, groupID int, userID int) (groupDeleted bool, err error)
	DeleteGroup(ctx context.Context, groupID int) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and its members atomically. The creator is
// always added with the admin role.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name string, description string, memberIDs []int) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.GetContext(ctx, &group, `INSERT INTO groups (name, description, creator_id) VALUES ($1, $2, $3)
        RETURNING id, name, description, avatar_url, creator_id, last_message_id, last_activity, created_at`,
		name, description, creatorID); err != nil {
		return models.Group{}, err
	}

	// dedupe members; the creator is implicit
	memberSet := map[int]struct{}{}
	for _, id := range memberIDs {
		if id != creatorID {
			memberSet[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, 'admin')`, group.ID, creatorID); err != nil {
		return models.Group{}, err
	}
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, 'member')`, group.ID, id); err != nil {
			return models.Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return r.GetGroup(ctx, group.ID)
}

// GetGroup fetches a group with its member list.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, description, avatar_url, creator_id, last_message_id, last_activity, created_at
        FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}

	if err := r.db.SelectContext(ctx, &group.Members, `SELECT user_id, role, joined_at
        FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC`, groupID); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// ListGroupsForUser returns groups that include the user, most recently
// active first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.description, g.avatar_url, g.creator_id, g.last_message_id, g.last_activity, g.created_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1 ORDER BY g.last_activity DESC`, userID)
	return groups, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// MemberIDs returns the user ids of every member, in join order.
func (r *GroupRepo) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC`, groupID)
	return ids, err
}

// UpdateGroup changes the name and description.
func (r *GroupRepo) UpdateGroup(ctx context.Context, groupID int, name string, description string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET name=$2, description=$3 WHERE id=$1`, groupID, name, description)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// AddMember inserts a member; adding an existing member is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, 'member')
        ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	return err
}

// RemoveMember removes a member. The creator can never be removed.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	var creatorID int
	err := r.db.GetContext(ctx, &creatorID, `SELECT creator_id FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrGroupNotFound
	}
	if err != nil {
		return err
	}
	if creatorID == userID {
		return ErrCreatorImmutable
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// SetMemberRole promotes or demotes a member. The creator's role is immutable.
func (r *GroupRepo) SetMemberRole(ctx context.Context, groupID int, userID int, role models.GroupRole) error {
	var creatorID int
	err := r.db.GetContext(ctx, &creatorID, `SELECT creator_id FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrGroupNotFound
	}
	if err != nil {
		return err
	}
	if creatorID == userID {
		return ErrCreatorImmutable
	}
	_, err = r.db.ExecContext(ctx, `UPDATE group_members SET role=$3 WHERE group_id=$1 AND user_id=$2`, groupID, userID, role)
	return err
}

// Leave removes the user from the group. When the last member leaves, the
// group is deleted and its messages cascade with it.
func (r *GroupRepo) Leave(ctx context.Context, groupID int, userID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID); err != nil {
		return false, err
	}

	var remaining int
	if err = tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM group_members WHERE group_id=$1`, groupID); err != nil {
		return false, err
	}

	deleted := false
	if remaining == 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
			return false, err
		}
		deleted = true
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return deleted, nil
}

// DeleteGroup removes the group outright; messages and members cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}
