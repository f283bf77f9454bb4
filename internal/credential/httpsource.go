package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSource renews credentials against the issuer's refresh endpoint. The
// endpoint responds to POST with the renewed raw token as its body.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a Source that POSTs to url for each renewal.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) Renew(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("building renewal request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling renewal endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("renewal endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading renewal response: %w", err)
	}

	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "", fmt.Errorf("renewal endpoint returned an empty token")
	}
	return raw, nil
}
