// Package journal records settlement gaps durably. Settlement failures are
// never surfaced to the paying user and never retried; this journal is the
// operational trail that replaces swallowing them.
package journal

import (
	"context"
	"errors"
	"time"
)

// Pipeline stages where a gap can occur.
const (
	StageIntent       = "intent"       // stashed intent missing or malformed
	StageNotification = "notification" // email gate did not confirm delivery
	StageSettlement   = "settlement"   // a backend mutation did not confirm
	StagePipeline     = "pipeline"     // pipeline-level policy entry (e.g. unhandled branch)
)

// ErrEmptyStage is returned when an entry has no stage.
var ErrEmptyStage = errors.New("journal entry stage cannot be empty")

// Entry is one recorded settlement gap.
type Entry struct {
	ID          string    `json:"id"`
	TxnRef      string    `json:"txn_ref"`
	PaymentType string    `json:"payment_type"`
	Stage       string    `json:"stage"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository defines methods for journal persistence.
type Repository interface {
	// Insert records an entry, assigning ID and CreatedAt when unset.
	Insert(ctx context.Context, entry *Entry) error

	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
