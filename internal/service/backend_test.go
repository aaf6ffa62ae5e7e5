package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

func TestHTTPBackendRoundTrip(t *testing.T) {
	var auth string
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "the answer", "mediaUrl": "/tmp/chart.png"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(models.BackendConfig{URL: server.URL, Token: "secret"})

	reply, err := backend.Reply(context.Background(), models.ReplyContext{
		From:       "zhangsan",
		Body:       "question",
		AccountID:  "acct1",
		SessionKey: "wecom:acct1:zhangsan",
		MediaURLs:  []string{"https://wx.example.com/pic.jpg"},
		Prompt:     "be terse",
	})
	require.NoError(t, err)

	assert.Equal(t, "the answer", reply.Text)
	assert.Equal(t, "/tmp/chart.png", reply.MediaURL)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "zhangsan", received["from"])
	assert.Equal(t, "question", received["body"])
	assert.Equal(t, "acct1", received["accountId"])
	assert.Equal(t, "wecom:acct1:zhangsan", received["sessionKey"])
	assert.Equal(t, []any{"https://wx.example.com/pic.jpg"}, received["mediaUrls"])
	assert.Equal(t, "be terse", received["systemPrompt"])
}

func TestHTTPBackendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewHTTPBackend(models.BackendConfig{URL: server.URL})

	_, err := backend.Reply(context.Background(), models.ReplyContext{From: "u", Body: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPBackendMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	backend := NewHTTPBackend(models.BackendConfig{URL: server.URL})

	_, err := backend.Reply(context.Background(), models.ReplyContext{From: "u", Body: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestHTTPBackendNoTokenNoAuthHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(models.BackendConfig{URL: server.URL})

	_, err := backend.Reply(context.Background(), models.ReplyContext{From: "u", Body: "q"})
	require.NoError(t, err)
	assert.False(t, sawAuth)
}
