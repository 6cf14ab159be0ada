package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/tudu/server/pkg/errors"
)

const defaultPushTimeout = 10 * time.Second

// HTTPPushClient implements Gateway against a JSON push relay (FCM-style:
// device token, notification title/body, opaque data payload).
type HTTPPushClient struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPPushClient returns a push client for the given relay endpoint. The
// client owns its HTTP timeout so a stalled provider cannot hold a caller
// past defaultPushTimeout even without a context deadline.
func NewHTTPPushClient(endpoint, apiKey string) *HTTPPushClient {
	return &HTTPPushClient{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultPushTimeout},
	}
}

type pushRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"message_id"`
}

// Send posts the notification to the relay. An empty address is a no-op.
func (c *HTTPPushClient) Send(ctx context.Context, address, title, body string, data map[string]string) (Receipt, error) {
	if address == "" {
		return Receipt{}, nil
	}
	if c.Endpoint == "" {
		return Receipt{}, apperrors.ErrDeliveryFailed(fmt.Errorf("push endpoint not configured"))
	}

	raw, err := json.Marshal(pushRequest{To: address, Title: title, Body: body, Data: data})
	if err != nil {
		return Receipt{}, apperrors.ErrDeliveryFailed(fmt.Errorf("marshal push request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return Receipt{}, apperrors.ErrDeliveryFailed(fmt.Errorf("build push request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Receipt{}, apperrors.ErrDeliveryFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, apperrors.ErrDeliveryFailed(
			fmt.Errorf("push relay returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload)))
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// Delivery succeeded; a malformed ack body is not worth failing over.
		return Receipt{}, nil
	}
	return Receipt{MessageID: parsed.MessageID}, nil
}
