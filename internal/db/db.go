package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_key TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            receiver_id TEXT NOT NULL,
            body TEXT NOT NULL,
            media_ref TEXT NOT NULL DEFAULT '',
            media_type TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages (conversation_key, created_at, id);`,
		`CREATE TABLE IF NOT EXISTS chat_summaries (
            owner_id TEXT NOT NULL,
            counterpart_id TEXT NOT NULL,
            last_message_body TEXT NOT NULL,
            last_message_at TIMESTAMPTZ NOT NULL,
            unread BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY (owner_id, counterpart_id)
        );`,
		`ALTER TABLE chat_summaries ADD COLUMN IF NOT EXISTS unread BOOLEAN NOT NULL DEFAULT FALSE;`,
		`CREATE INDEX IF NOT EXISTS idx_chat_summaries_owner_recency
            ON chat_summaries (owner_id, last_message_at DESC);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	zap.L().Info("database migrations applied")
	return nil
}
