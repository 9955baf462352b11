package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// HTTPClient publishes attestations through a remote node's HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	baseDelay  time.Duration
	logger     *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithRetries sets how often a failed broadcast is retried and the first delay.
func WithRetries(maxRetries uint64, baseDelay time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// NewHTTPClient creates a client for the node at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...HTTPOption) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type publishResponse struct {
	Unit  string `json:"unit"`
	Error string `json:"error,omitempty"`
}

// PublishAttestation posts the attestation message. Broadcast failures are
// retried with exponential backoff; compose failures are not.
func (c *HTTPClient) PublishAttestation(ctx context.Context, address string, profile domain.Fields) (string, error) {
	body, err := json.Marshal(NewMessage(address, profile))
	if err != nil {
		return "", fmt.Errorf("%w: encode message: %v", ErrCompose, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxElapsedTime = 0

	var unit string
	operation := func() error {
		u, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		unit = u
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("Ledger publish failed, retrying", "address", address, "error", err, "next", next)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx), notify)
	if err != nil {
		return "", err
	}
	return unit, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attestations", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: %v", ErrCompose, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrBroadcast, err)
	}

	var out publishResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", backoff.Permanent(fmt.Errorf("%w: %s", ErrInsufficientFunds, out.Error))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d: %s", ErrBroadcast, resp.StatusCode, out.Error)
	case resp.StatusCode >= 400:
		return "", backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrCompose, resp.StatusCode, out.Error))
	}

	if out.Unit == "" {
		return "", backoff.Permanent(fmt.Errorf("%w: response carries no unit", ErrBroadcast))
	}
	return out.Unit, nil
}
