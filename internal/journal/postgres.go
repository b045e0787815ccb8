package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresRepository implements Repository on PostgreSQL. The table is
// created by migrations/000001_create_settlement_journal.up.sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a journal over an existing database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Insert records an entry, assigning ID and CreatedAt when unset.
func (r *PostgresRepository) Insert(ctx context.Context, entry *Entry) error {
	if entry.Stage == "" {
		return ErrEmptyStage
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_journal (id, txn_ref, payment_type, stage, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TxnRef, entry.PaymentType, entry.Stage, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, txn_ref, payment_type, stage, detail, created_at
		FROM settlement_journal
		ORDER BY created_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TxnRef, &e.PaymentType, &e.Stage, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
