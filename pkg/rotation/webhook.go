package rotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/systmms/credops/internal/logging"
)

// WebhookRotator delegates rotation to an external HTTP endpoint, for
// providers whose secrets can only be regenerated by their own control
// plane.
type WebhookRotator struct {
	endpoint string
	client   *http.Client
	logger   *logging.Logger
	allowed  []string
}

// NewWebhookRotator creates a webhook rotator for the endpoint. The HTTP
// client timeout is a backstop; per-call deadlines come from the engine's
// context.
func NewWebhookRotator(endpoint string, logger *logging.Logger, keys []string) *WebhookRotator {
	return &WebhookRotator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
		allowed:  keys,
	}
}

func (r *WebhookRotator) Kind() Kind { return KindWebhook }

type webhookRequest struct {
	Action    string    `json:"action"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

type webhookResponse struct {
	Success  bool   `json:"success"`
	NewValue string `json:"new_value,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (r *WebhookRotator) Rotate(ctx context.Context, key string) (string, error) {
	if !keyAllowed(r.allowed, key) {
		return "", &Error{Kind: ErrNotSupported, Key: key}
	}

	body, err := json.Marshal(webhookRequest{
		Action:    "rotate",
		Key:       key,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r.logger.Debug("Calling rotation webhook for key %s", key)
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", &Error{Kind: ErrUpstreamTimeout, Key: key, Err: err}
		}
		return "", &Error{Kind: ErrUpstreamRejected, Key: key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Kind: ErrUpstreamRejected,
			Key:  key,
			Err:  fmt.Errorf("webhook returned status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: ErrUpstreamRejected, Key: key, Err: err}
	}

	var parsed webhookResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: ErrUpstreamRejected, Key: key, Err: fmt.Errorf("invalid webhook response: %w", err)}
	}
	if !parsed.Success || parsed.NewValue == "" {
		return "", &Error{
			Kind: ErrUpstreamRejected,
			Key:  key,
			Err:  fmt.Errorf("webhook refused rotation: %s", parsed.Error),
		}
	}

	return parsed.NewValue, nil
}
