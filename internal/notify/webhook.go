package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookNotifier posts events to a Slack-compatible incoming webhook, so a
// lab channel sees when batches land or the engine misbehaves.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. An empty URL disables it.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookMessage struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

type webhookAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// Notify posts persisted-batch and fallback events. Errors are swallowed;
// a dead webhook must not affect batch generation.
func (w *WebhookNotifier) Notify(e Event) {
	if w.url == "" {
		return
	}
	title, text := render(e)
	if title == "" {
		return
	}
	color := "good"
	if e.Kind == FallbackUsed {
		color = "warning"
	}
	msg := webhookMessage{
		Text: title,
		Attachments: []webhookAttachment{{
			Color:  color,
			Title:  e.CampaignID,
			Text:   text,
			Footer: "tunex",
		}},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return
	}
	resp.Body.Close()
}
