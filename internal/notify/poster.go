package notify

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPoster posts notification payloads as JSON over HTTP.
type WebhookPoster struct {
	Client *http.Client
}

func NewWebhookPoster() *WebhookPoster {
	return &WebhookPoster{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *WebhookPoster) Post(url string, payload []byte) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
