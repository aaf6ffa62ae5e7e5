package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/constants"
	apperrors "github.com/toboto/moltbot-wecom-channel/internal/errors"
	"github.com/toboto/moltbot-wecom-channel/internal/media"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/pkg/wecom"
)

// DeliveryTier is one mechanism in the dispatcher's ordered fallback
// chain. Deliver returns (true, nil) on success, (false, nil) when the
// tier is not configured for this send, and (false, err) when an attempt
// failed; failures fall through to the next tier.
type DeliveryTier interface {
	Name() string
	Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error)
}

// syncTier fulfills a still-open synchronous HTTP request from the same
// recipient, short-circuiting every transport.
type syncTier struct {
	pending *PendingSyncStore
}

// NewSyncTier creates the synchronous-correlation tier
func NewSyncTier(pending *PendingSyncStore) DeliveryTier {
	return &syncTier{pending: pending}
}

func (t *syncTier) Name() string { return "sync" }

func (t *syncTier) Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error) {
	return t.pending.Fulfill(recipientID, msg), nil
}

// firstPartyTier sends through the WeCom application API, uploading
// media first when the message references any.
type firstPartyTier struct {
	api     wecom.API
	fetcher media.Fetcher
	router  media.Router
}

// NewFirstPartyTier creates the first-party API tier
func NewFirstPartyTier(api wecom.API, fetcher media.Fetcher, router media.Router) DeliveryTier {
	return &firstPartyTier{api: api, fetcher: fetcher, router: router}
}

func (t *firstPartyTier) Name() string { return "first-party" }

func (t *firstPartyTier) Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error) {
	if !cfg.HasFirstParty() {
		return false, nil
	}

	creds := cfg.WeCom
	text := msg.Text

	if msg.MediaURL != "" {
		if err := t.deliverMedia(ctx, recipientID, msg, creds); err == nil {
			return true, nil
		}
		// Degrade within the tier: plain text with the media reference
		// appended as a link.
		text = appendAttachment(text, msg.MediaURL)
	}

	if err := t.api.SendMessage(ctx, creds.CorpID, creds.CorpSecret, wecom.TextMessage(creds.AgentID, recipientID, text)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *firstPartyTier) deliverMedia(ctx context.Context, recipientID string, msg models.OutboundMessage, creds models.WeComConfig) error {
	mediaType := t.router.GetMediaType(msg.MediaURL)
	data, err := t.fetcher.Fetch(ctx, msg.MediaURL, t.router.GetMaxSizeForMediaType(mediaType))
	if err != nil {
		return err
	}

	mediaID, err := t.api.UploadMedia(ctx, creds.CorpID, creds.CorpSecret, mediaType, data, t.router.Filename(msg.MediaURL))
	if err != nil {
		return err
	}

	if err := t.api.SendMessage(ctx, creds.CorpID, creds.CorpSecret, wecom.MediaMessage(creds.AgentID, recipientID, mediaType, mediaID)); err != nil {
		return err
	}

	// Accompanying text goes out as a second message.
	if msg.Text != "" {
		if err := t.api.SendMessage(ctx, creds.CorpID, creds.CorpSecret, wecom.TextMessage(creds.AgentID, recipientID, msg.Text)); err != nil {
			return err
		}
	}

	return nil
}

// legacyEnvelope is the fixed request body of the wrapped legacy API
type legacyEnvelope struct {
	Action    string     `json:"Action"`
	Namespace string     `json:"Namespace"`
	Token     string     `json:"Token"`
	Code      string     `json:"Code"`
	Data      legacyData `json:"Data"`
	ToEmails  []string   `json:"ToEmails"`
}

type legacyData struct {
	Text string `json:"Text"`
}

// legacyTier posts the fixed envelope to the wrapped legacy messaging API
type legacyTier struct {
	client *http.Client
}

// NewLegacyTier creates the legacy wrapped API tier
func NewLegacyTier(client *http.Client) DeliveryTier {
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second}
	}
	return &legacyTier{client: client}
}

func (t *legacyTier) Name() string { return "legacy" }

func (t *legacyTier) Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error) {
	if !cfg.HasLegacy() {
		return false, nil
	}

	apiURL := cfg.Legacy.APIURL
	if apiURL == "" {
		apiURL = constants.DefaultLegacyAPIURL
	}
	namespace := cfg.Legacy.Namespace
	if namespace == "" {
		namespace = constants.DefaultLegacyNamespace
	}

	text := msg.Text
	if msg.MediaURL != "" {
		text = appendAttachment(text, msg.MediaURL)
	}

	body, err := json.Marshal(legacyEnvelope{
		Action:    constants.DefaultLegacyAction,
		Namespace: namespace,
		Token:     cfg.Legacy.Token,
		Code:      cfg.Legacy.Code,
		Data:      legacyData{Text: text},
		ToEmails:  []string{recipientID},
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal legacy envelope: %w", err)
	}

	return postJSON(ctx, t.client, t.Name(), apiURL, "", body)
}

// webhookTier posts the message to a configured generic webhook
type webhookTier struct {
	client *http.Client
}

// NewWebhookTier creates the generic webhook tier
func NewWebhookTier(client *http.Client) DeliveryTier {
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second}
	}
	return &webhookTier{client: client}
}

func (t *webhookTier) Name() string { return "webhook" }

func (t *webhookTier) Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error) {
	if !cfg.HasWebhook() {
		return false, nil
	}

	body, err := json.Marshal(struct {
		RecipientEmail string `json:"recipientEmail"`
		models.OutboundMessage
	}{
		RecipientEmail:  recipientID,
		OutboundMessage: msg,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return postJSON(ctx, t.client, t.Name(), cfg.Webhook.URL, cfg.Webhook.Token, body)
}

func postJSON(ctx context.Context, client *http.Client, tier, url, bearer string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, apperrors.NewTransportError(tier, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, apperrors.NewTransportError(tier, resp.StatusCode,
			fmt.Errorf("endpoint returned status %d", resp.StatusCode))
	}

	return true, nil
}

func appendAttachment(text, mediaURL string) string {
	if text == "" {
		return "📎 attachment: " + mediaURL
	}
	return text + "\n\n📎 attachment: " + mediaURL
}
