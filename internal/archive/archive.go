// Package archive persists scraped message batches to PostgreSQL. It is
// optional; the core never requires a database.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DBPool = (*pgxpool.Pool)(nil)

// Store writes message snapshots to Postgres. Re-scraping a channel upserts
// by message id, so edited content converges on the latest observation.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

// Connect opens a pool from a DSN and returns a Store over it.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive pool: %w", err)
	}
	return New(ctx, pool, logger)
}

const upsertMessageSQL = `
    INSERT INTO messages (id, channel_id, server_id, author_id, author_name, content, is_edited, sent_at, scraped_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (id) DO UPDATE SET
        author_name = EXCLUDED.author_name,
        content = EXCLUDED.content,
        is_edited = EXCLUDED.is_edited,
        scraped_at = EXCLUDED.scraped_at;
`

const upsertAttachmentSQL = `
    INSERT INTO message_attachments (message_id, url, kind)
    VALUES ($1, $2, $3)
    ON CONFLICT (message_id, url) DO NOTHING;
`

// SaveMessages upserts one scraped batch in a single transaction.
func (s *Store) SaveMessages(ctx context.Context, serverID string, messages []schemas.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	scrapedAt := time.Now().UTC()
	for _, m := range messages {
		if _, err := tx.Exec(ctx, upsertMessageSQL,
			m.ID, m.ChannelID, serverID,
			m.AuthorID, m.AuthorName, m.Content,
			m.IsEdited, m.TimestampUTC.UTC(), scrapedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
		}
		for _, a := range m.Attachments {
			if _, err := tx.Exec(ctx, upsertAttachmentSQL, m.ID, a.URL, string(a.Kind)); err != nil {
				return fmt.Errorf("failed to upsert attachment for %s: %w", m.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Archived messages", zap.String("server_id", serverID), zap.Int("count", len(messages)))
	return nil
}

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        channel_id TEXT NOT NULL,
        server_id TEXT NOT NULL,
        author_id TEXT NOT NULL,
        author_name TEXT NOT NULL,
        content TEXT NOT NULL,
        is_edited BOOLEAN NOT NULL DEFAULT FALSE,
        sent_at TIMESTAMPTZ NOT NULL,
        scraped_at TIMESTAMPTZ NOT NULL
    );
    CREATE TABLE IF NOT EXISTS message_attachments (
        message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        url TEXT NOT NULL,
        kind TEXT NOT NULL,
        PRIMARY KEY (message_id, url)
    );
    CREATE INDEX IF NOT EXISTS idx_messages_channel_sent ON messages (channel_id, sent_at DESC);
`

// EnsureSchema creates the archive tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}
