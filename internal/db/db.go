package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            avatar_url TEXT,
            last_seen_at TIMESTAMPTZ,
            show_online_status BOOLEAN NOT NULL DEFAULT TRUE,
            show_last_seen BOOLEAN NOT NULL DEFAULT TRUE,
            show_read_receipts BOOLEAN NOT NULL DEFAULT TRUE,
            enable_notifications BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS groups (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            avatar_url TEXT,
            creator_id INT NOT NULL REFERENCES users(id),
            last_message_id INT,
            last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS group_members (
            group_id INT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (group_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
            sender_id INT NOT NULL REFERENCES users(id),
            receiver_id INT REFERENCES users(id),
            group_id INT REFERENCES groups(id) ON DELETE CASCADE,
            body TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            file_name TEXT,
            file_url TEXT,
            file_size BIGINT,
            file_mime TEXT,
            status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'seen')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (
                (kind = 'direct' AND receiver_id IS NOT NULL AND group_id IS NULL) OR
                (kind = 'group' AND group_id IS NOT NULL AND receiver_id IS NULL)
            )
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages (sender_id, receiver_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS message_receipts (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            kind TEXT NOT NULL CHECK (kind IN ('delivered', 'seen')),
            recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id, kind)
        );`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            emoji TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id, emoji)
        );`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
