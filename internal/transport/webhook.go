package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// WebhookTransport delivers by POSTing each message as JSON to a fixed URL.
// The URL is injected from config so tests can point to an httptest server.
type WebhookTransport struct {
	url         string
	defaultFrom string
	httpClient  *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration, defaultFrom string) *WebhookTransport {
	return &WebhookTransport{
		url:         url,
		defaultFrom: defaultFrom,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dial checks nothing up front; HTTP connections are pooled by the client.
func (t *WebhookTransport) Dial(_ context.Context) (Conn, error) {
	return &webhookConn{t: t}, nil
}

type webhookConn struct {
	t *WebhookTransport
}

// Send expects any 2xx response.
func (c *webhookConn) Send(ctx context.Context, msg *domain.Message) error {
	msg = withDefaultFrom(msg, c.t.defaultFrom)
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}
	return nil
}

func (c *webhookConn) Close() error {
	c.t.httpClient.CloseIdleConnections()
	return nil
}

// compile-time check that WebhookTransport implements Transport
var _ Transport = (*WebhookTransport)(nil)
