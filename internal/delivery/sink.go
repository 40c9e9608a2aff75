package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/pkg/httpretry"
	"github.com/ignite/adserving/internal/pkg/logger"
)

// LogDelivery writes the notification to the structured log and always succeeds.
type LogDelivery struct {
	renderer *Renderer
}

// NewLogDelivery creates a log sink.
func NewLogDelivery(r *Renderer) *LogDelivery {
	return &LogDelivery{renderer: r}
}

// Show implements serving.Delivery.
func (d *LogDelivery) Show(_ context.Context, ad domain.CreativeAd) bool {
	n, err := d.renderer.Render(ad)
	if err != nil {
		logger.Error("render notification", "creative_instance_id", ad.CreativeInstanceID, "error", err)
		return false
	}
	logger.Info("notification shown",
		"creative_instance_id", n.CreativeInstanceID,
		"title", n.Title,
		"body", n.Body,
		"target_url", n.TargetURL,
	)
	return true
}

// Webhook POSTs the notification to a surface that displays it. Any 2xx
// response means shown; anything else, including exhausted retries, is a refusal.
type Webhook struct {
	renderer *Renderer
	client   httpretry.HTTPDoer
	url      string
	token    string
}

// NewWebhook creates a webhook sink. A nil client uses a RetryClient with defaults.
func NewWebhook(r *Renderer, client httpretry.HTTPDoer, url, token string) *Webhook {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &Webhook{renderer: r, client: client, url: url, token: token}
}

// Show implements serving.Delivery.
func (w *Webhook) Show(ctx context.Context, ad domain.CreativeAd) bool {
	if err := w.post(ctx, ad); err != nil {
		logger.Warn("webhook delivery refused", "creative_instance_id", ad.CreativeInstanceID, "error", err)
		return false
	}
	return true
}

func (w *Webhook) post(ctx context.Context, ad domain.CreativeAd) error {
	n, err := w.renderer.Render(ad)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("surface returned status %d", resp.StatusCode)
	}
	return nil
}
