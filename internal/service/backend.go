package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/constants"
	apperrors "github.com/toboto/moltbot-wecom-channel/internal/errors"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

// Backend is the conversational engine the bridge forwards inbound
// messages to. Reply blocks for the full round trip; callers run it off
// the webhook response path.
type Backend interface {
	Reply(ctx context.Context, rc models.ReplyContext) (models.OutboundMessage, error)
}

type httpBackend struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPBackend creates a Backend that POSTs the reply context as JSON
// to the configured conversational endpoint.
func NewHTTPBackend(cfg models.BackendConfig) Backend {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = constants.DefaultBackendTimeoutSec * time.Second
	}
	return &httpBackend{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}
}

type backendRequest struct {
	From         string   `json:"from"`
	Body         string   `json:"body"`
	AccountID    string   `json:"accountId"`
	SessionKey   string   `json:"sessionKey"`
	MediaURLs    []string `json:"mediaUrls,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
}

func (b *httpBackend) Reply(ctx context.Context, rc models.ReplyContext) (models.OutboundMessage, error) {
	body, err := json.Marshal(backendRequest{
		From:         rc.From,
		Body:         rc.Body,
		AccountID:    rc.AccountID,
		SessionKey:   rc.SessionKey,
		MediaURLs:    rc.MediaURLs,
		SystemPrompt: rc.Prompt,
	})
	if err != nil {
		return models.OutboundMessage{}, fmt.Errorf("failed to marshal backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return models.OutboundMessage{}, fmt.Errorf("failed to create backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return models.OutboundMessage{}, apperrors.NewTransportError("backend", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.OutboundMessage{}, apperrors.NewTransportError("backend", resp.StatusCode,
			fmt.Errorf("backend returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.OutboundMessage{}, fmt.Errorf("failed to read backend response: %w", err)
	}

	var msg models.OutboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.OutboundMessage{}, fmt.Errorf("failed to decode backend response: %w", err)
	}
	return msg, nil
}
