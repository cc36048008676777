// Package notify delivers failure notifications to a webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/reflector/internal/models"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// DeliveryHeader carries a unique id for each delivery.
const DeliveryHeader = "X-Reflector-Delivery"

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// WebhookClient posts FailureNotification payloads as JSON.
type WebhookClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewWebhookClient creates a client. A non-positive timeout uses DefaultTimeout.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "reflector",
	}
}

// WithUserAgent sets the User-Agent header sent with each delivery.
func (c *WebhookClient) WithUserAgent(ua string) *WebhookClient {
	c.userAgent = ua
	return c
}

// SendFailureNotification posts the notification to url. Any response outside
// the 2xx range is an error.
func (c *WebhookClient) SendFailureNotification(ctx context.Context, url string, notification models.FailureNotification) error {
	if url == "" {
		return fmt.Errorf("notification url is empty")
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(snippet) > 0 {
			return fmt.Errorf("notification endpoint returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
		}
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
