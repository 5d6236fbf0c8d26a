package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher POSTs change events to an HTTP endpoint. Bodies are
// signed with HMAC-SHA256; non-2xx responses are errors so the dispatcher
// can retry.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookPublisher falls back to a 10s timeout when timeout <= 0.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sets these headers on every request:
//
//	Content-Type:            application/json
//	X-Shopfloor-Event-Id:    <event.EventID>
//	X-Shopfloor-Action:      EDIT | DELETE
//	X-Shopfloor-Record-Id:   <event.RecordID>
//	X-Hub-Signature-256:     sha256=<hex HMAC-SHA256 of body>
//
// The signature header is omitted when no secret is configured.
func (p *WebhookPublisher) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopfloor-Event-Id", event.EventID)
	req.Header.Set("X-Shopfloor-Action", event.Action)
	req.Header.Set("X-Shopfloor-Record-Id", event.RecordID)
	if len(p.secret) > 0 {
		req.Header.Set("X-Hub-Signature-256", "sha256="+p.sign(payload))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
