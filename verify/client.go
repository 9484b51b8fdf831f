package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrMissingCredential means the service is misconfigured locally.
	// Surfaced once per call attempt; never retried.
	ErrMissingCredential = errors.New("verification credential missing")

	// ErrServiceUnavailable wraps transport failures and 5xx responses.
	ErrServiceUnavailable = errors.New("verification service unavailable")

	// ErrRateBudgetExceeded means the external budget was hit despite the
	// local throttle, typically from competing clients on the same key.
	ErrRateBudgetExceeded = errors.New("verification rate budget exceeded")
)

// HTTPClient calls the photo-verification endpoint with a JSON body.
type HTTPClient struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewHTTPClient builds a client. apiKey may be empty; every Verify call
// then fails fast with ErrMissingCredential.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Image string `json:"image"`
}

// Verify submits one image payload and decodes the verdict.
func (c *HTTPClient) Verify(ctx context.Context, imagePayload []byte) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(verifyRequest{Image: base64.StdEncoding.EncodeToString(imagePayload)})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateBudgetExceeded
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("verification rejected: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
