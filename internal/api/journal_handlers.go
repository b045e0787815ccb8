package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/unisew/reconciler/internal/journal"
	"github.com/unisew/reconciler/internal/middleware"
)

// defaultJournalLimit bounds an unqualified listing request.
const defaultJournalLimit = 50

// maxJournalLimit caps the listing size.
const maxJournalLimit = 500

// JournalHandlers exposes the settlement-gap journal to operators.
type JournalHandlers struct {
	repo   journal.Repository
	logger *slog.Logger
}

// NewJournalHandlers creates the journal handler set.
func NewJournalHandlers(repo journal.Repository, logger *slog.Logger) *JournalHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalHandlers{repo: repo, logger: logger}
}

// List handles GET /journal?limit=N, newest first.
func (h *JournalHandlers) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		if n > maxJournalLimit {
			n = maxJournalLimit
		}
		limit = n
	}

	entries, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list journal entries", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list journal entries")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
