package session

import (
	"log/slog"
	"time"
)

// DefaultMarkerRetention is how long in-memory processed markers are kept
// before cleanup. Redis-backed stores expire markers natively via TTL.
const DefaultMarkerRetention = 30 * 24 * time.Hour

// MarkerJanitor removes aged processed markers. Implemented by
// InMemoryManager; Redis needs no janitor.
type MarkerJanitor interface {
	DeleteProcessedOlderThan(retention time.Duration) (int64, error)
}

// CleanupMarkers removes processed markers older than the retention window.
// Returns the number of markers deleted.
func CleanupMarkers(janitor MarkerJanitor, retention time.Duration) (int64, error) {
	deleted, err := janitor.DeleteProcessedOlderThan(retention)
	if err != nil {
		slog.Error("failed to clean up processed markers", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.Info("cleaned up processed markers", "deleted", deleted, "older_than", retention)
	}

	return deleted, nil
}

// RunPeriodicCleanup runs marker cleanup at the given interval until
// stopChan is closed. Blocks; run in a goroutine.
func RunPeriodicCleanup(janitor MarkerJanitor, interval, retention time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := CleanupMarkers(janitor, retention); err != nil {
		slog.Error("initial marker cleanup failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := CleanupMarkers(janitor, retention); err != nil {
				slog.Error("periodic marker cleanup failed", "error", err)
			}
		case <-stopChan:
			slog.Info("stopping marker cleanup")
			return
		}
	}
}
