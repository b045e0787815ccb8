package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// BackendChecker implements health checking for the storefront backend, the
// collaborator every settlement operation depends on.
type BackendChecker struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackendChecker creates a new storefront backend health checker.
func NewBackendChecker(baseURL string) *BackendChecker {
	return &BackendChecker{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// HealthCheck calls the backend's own health endpoint.
func (b *BackendChecker) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health returned status %d", resp.StatusCode)
	}
	return nil
}
