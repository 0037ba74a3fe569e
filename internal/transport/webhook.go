package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook delivers outbound messages to the chat gateway over HTTP.
// Each Messenger operation maps to one endpoint under the gateway URL;
// the gateway owns the actual chat platform session.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewWebhook returns a Webhook messenger for a gateway base URL.
// timeoutSeconds zero means the default timeout.
func NewWebhook(url, secret string, timeoutSeconds int) *Webhook {
	timeout := defaultWebhookTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Webhook{
		URL:    strings.TrimRight(url, "/"),
		Secret: secret,
		Client: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	ChannelID string      `json:"channel_id,omitempty"`
	Ref       *MessageRef `json:"ref,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Text      string      `json:"text,omitempty"`
	Card      *Card       `json:"card,omitempty"`
	Event     *Event      `json:"event,omitempty"`
	Form      *Form       `json:"form,omitempty"`
}

func (w *Webhook) Send(ctx context.Context, channelID string, card Card) (MessageRef, error) {
	var ref MessageRef
	err := w.post(ctx, "/send", sendRequest{ChannelID: channelID, Card: &card}, &ref)
	return ref, err
}

func (w *Webhook) Edit(ctx context.Context, ref MessageRef, card Card) error {
	return w.post(ctx, "/edit", sendRequest{Ref: &ref, Card: &card}, nil)
}

func (w *Webhook) Reply(ctx context.Context, ref MessageRef, card Card) (MessageRef, error) {
	var out MessageRef
	err := w.post(ctx, "/reply", sendRequest{Ref: &ref, Card: &card}, &out)
	return out, err
}

func (w *Webhook) Ephemeral(ctx context.Context, ref MessageRef, actorID, text string) error {
	return w.post(ctx, "/ephemeral", sendRequest{Ref: &ref, ActorID: actorID, Text: text}, nil)
}

func (w *Webhook) OpenForm(ctx context.Context, event Event, form Form) error {
	return w.post(ctx, "/form", sendRequest{Event: &event, Form: &form}, nil)
}

func (w *Webhook) DirectMessage(ctx context.Context, userID string, card Card) (MessageRef, error) {
	var ref MessageRef
	err := w.post(ctx, "/dm", sendRequest{ActorID: userID, Card: &card}, &ref)
	return ref, err
}

func (w *Webhook) post(ctx context.Context, path string, body sendRequest, out *MessageRef) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Docketline-Secret", w.Secret)
	}
	res, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("gateway %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("gateway %s: decode response: %w", path, err)
		}
	}
	return nil
}
