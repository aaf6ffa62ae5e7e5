package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/constants"
)

// Application-level error codes signaling an invalid or expired token;
// either evicts the cached token so the next call re-authenticates.
const (
	ErrCodeInvalidToken = 40014
	ErrCodeTokenExpired = 42001
)

// APIError is a non-zero application-level error code from a WeCom response
type APIError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wecom api error %d: %s", e.Code, e.Message)
}

// IsTokenInvalid reports whether the error is one of the reserved
// token-invalidity codes.
func IsTokenInvalid(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && (apiErr.Code == ErrCodeInvalidToken || apiErr.Code == ErrCodeTokenExpired)
}

// API is the first-party WeCom surface consumed by the outbound dispatcher
type API interface {
	SendMessage(ctx context.Context, corpID, secret string, payload SendMessagePayload) error
	UploadMedia(ctx context.Context, corpID, secret, mediaType string, data []byte, filename string) (string, error)
	DownloadMedia(ctx context.Context, corpID, secret, mediaID string) ([]byte, error)
}

// TextContent is the body of a text message
type TextContent struct {
	Content string `json:"content"`
}

// MediaContent references previously uploaded temporary media
type MediaContent struct {
	MediaID string `json:"media_id"`
}

// SendMessagePayload is the message/send request body
type SendMessagePayload struct {
	MsgType string        `json:"msgtype"`
	AgentID int           `json:"agentid"`
	ToUser  string        `json:"touser,omitempty"`
	Text    *TextContent  `json:"text,omitempty"`
	Image   *MediaContent `json:"image,omitempty"`
	Voice   *MediaContent `json:"voice,omitempty"`
	Video   *MediaContent `json:"video,omitempty"`
	File    *MediaContent `json:"file,omitempty"`
}

// TextMessage builds a plain text send payload
func TextMessage(agentID int, toUser, content string) SendMessagePayload {
	return SendMessagePayload{
		MsgType: "text",
		AgentID: agentID,
		ToUser:  toUser,
		Text:    &TextContent{Content: content},
	}
}

// MediaMessage builds a media send payload for an uploaded media id
func MediaMessage(agentID int, toUser, mediaType, mediaID string) SendMessagePayload {
	payload := SendMessagePayload{
		MsgType: mediaType,
		AgentID: agentID,
		ToUser:  toUser,
	}
	ref := &MediaContent{MediaID: mediaID}
	switch mediaType {
	case "image":
		payload.Image = ref
	case "voice":
		payload.Voice = ref
	case "video":
		payload.Video = ref
	default:
		payload.MsgType = "file"
		payload.File = ref
	}
	return payload
}

// Client calls the WeCom first-party API, resolving an access token from
// the shared cache before every request.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  *TokenCache
}

// NewClient creates a first-party API client. An empty baseURL selects
// the production endpoint.
func NewClient(baseURL string, httpClient *http.Client, tokens *TokenCache) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		tokens:  tokens,
	}
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	MediaID string `json:"media_id"`
	Type    string `json:"type"`
}

// SendMessage delivers a message through message/send
func (c *Client) SendMessage(ctx context.Context, corpID, secret string, payload SendMessagePayload) error {
	token, err := c.tokens.GetToken(ctx, corpID, secret)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/message/send?access_token=%s", c.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("message send returned status %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode send response: %w", err)
	}
	if result.ErrCode != 0 {
		return c.apiError(corpID, secret, result)
	}

	return nil
}

// UploadMedia uploads temporary media and returns its media id.
// mediaType is one of image, voice, video or file.
func (c *Client) UploadMedia(ctx context.Context, corpID, secret, mediaType string, data []byte, filename string) (string, error) {
	token, err := c.tokens.GetToken(ctx, corpID, secret)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="media"; filename=%q`, filename))
	header.Set("Content-Type", mimeTypeFor(filename))
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write media content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/media/upload?access_token=%s&type=%s",
		c.baseURL, url.QueryEscape(token), url.QueryEscape(mediaType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media upload returned status %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.ErrCode != 0 {
		return "", c.apiError(corpID, secret, result)
	}

	return result.MediaID, nil
}

// DownloadMedia fetches temporary media bytes by media id. An error
// payload disguised as a JSON body is surfaced as an APIError.
func (c *Client) DownloadMedia(ctx context.Context, corpID, secret, mediaID string) ([]byte, error) {
	token, err := c.tokens.GetToken(ctx, corpID, secret)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/media/get?access_token=%s&media_id=%s",
		c.baseURL, url.QueryEscape(token), url.QueryEscape(mediaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var result apiResponse
		if err := json.Unmarshal(data, &result); err == nil && result.ErrCode != 0 {
			return nil, c.apiError(corpID, secret, result)
		}
	}

	return data, nil
}

// mimeTypeFor maps a filename extension to the MIME type declared on the
// upload part; unknown extensions fall back to octet-stream.
func mimeTypeFor(filename string) string {
	if mt, ok := constants.MimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return constants.DefaultMimeType
}

// apiError converts an error response, evicting the cached token when the
// code signals token invalidity.
func (c *Client) apiError(corpID, secret string, result apiResponse) error {
	err := &APIError{Code: result.ErrCode, Message: result.ErrMsg}
	if IsTokenInvalid(err) {
		c.tokens.Evict(corpID, secret)
	}
	return err
}
