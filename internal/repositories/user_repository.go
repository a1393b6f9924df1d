package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chatrelay/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence. The routing core only reads
// identities; the REST surface uses the rest.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	ListUsers(ctx context.Context, excludeID int) ([]models.User, error)
	UpdateLastSeen(ctx context.Context, userID int) error
	UpdateProfile(ctx context.Context, userID int, name string, avatarURL *string) error
	GetSettings(ctx context.Context, userID int) (models.UserSettings, error)
	UpdateSettings(ctx context.Context, userID int, settings models.UserSettings) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, name, email, avatar_url, last_seen_at, created_at`

// GetUser fetches a single user.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every user except the caller.
func (r *UserRepo) ListUsers(ctx context.Context, excludeID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY name ASC`, excludeID)
	return users, err
}

// UpdateLastSeen stamps the user's last-seen time, called on disconnect.
func (r *UserRepo) UpdateLastSeen(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen_at=NOW() WHERE id=$1`, userID)
	return err
}

// UpdateProfile changes the display name and avatar.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID int, name string, avatarURL *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name=$2, avatar_url=COALESCE($3, avatar_url) WHERE id=$1`, userID, name, avatarURL)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetSettings loads the user's privacy and notification preferences.
func (r *UserRepo) GetSettings(ctx context.Context, userID int) (models.UserSettings, error) {
	var settings models.UserSettings
	err := r.db.GetContext(ctx, &settings, `SELECT show_online_status, show_last_seen, show_read_receipts, enable_notifications
        FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserSettings{}, ErrUserNotFound
	}
	return settings, err
}

// UpdateSettings replaces the user's preferences.
func (r *UserRepo) UpdateSettings(ctx context.Context, userID int, settings models.UserSettings) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET show_online_status=$2, show_last_seen=$3, show_read_receipts=$4, enable_notifications=$5
        WHERE id=$1`, userID, settings.ShowOnlineStatus, settings.ShowLastSeen, settings.ShowReadReceipts, settings.EnableNotifications)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
