package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toboto/moltbot-wecom-channel/internal/database"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

type fakeBackend struct {
	requests []models.ReplyContext
	reply    models.OutboundMessage
	err      error
}

func (f *fakeBackend) Reply(ctx context.Context, rc models.ReplyContext) (models.OutboundMessage, error) {
	f.requests = append(f.requests, rc)
	return f.reply, f.err
}

type fakeTranscriber struct {
	transcript string
	err        error
	audio      []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	f.audio = audio
	return f.transcript, f.err
}

type serviceFixture struct {
	svc     *MessageService
	backend *fakeBackend
	tier    *stubTier
	queue   *OutboundQueue
}

func newServiceFixture(t *testing.T, backend *fakeBackend, api *fakeAPI, tr Transcriber) *serviceFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.New(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tier := &stubTier{name: "capture", delivered: true}
	queue := NewOutboundQueue()
	dispatcher := NewDispatcher([]DeliveryTier{tier}, queue, NewPendingSyncStore(0), NewRecipientTracker(), logger)

	return &serviceFixture{
		svc:     NewMessageService(backend, dispatcher, db, api, tr, logger),
		backend: backend,
		tier:    tier,
		queue:   queue,
	}
}

func testAccount() *models.Account {
	return &models.Account{ID: "acct1", SystemPrompt: "be terse"}
}

func textMessage(msgID, content string) models.InboundMessage {
	return models.InboundMessage{
		ToUser:   "ww1",
		FromUser: "zhangsan",
		Kind:     models.MessageKindText,
		MsgID:    msgID,
		Content:  content,
	}
}

func TestHandleInboundRoundTrip(t *testing.T) {
	backend := &fakeBackend{reply: models.OutboundMessage{Text: "pong"}}
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleInbound(context.Background(), testAccount(), textMessage("m1", "ping"))

	require.Len(t, backend.requests, 1)
	rc := backend.requests[0]
	assert.Equal(t, "zhangsan", rc.From)
	assert.Equal(t, "ping", rc.Body)
	assert.Equal(t, "acct1", rc.AccountID)
	assert.Equal(t, "wecom:acct1:zhangsan", rc.SessionKey)
	assert.Equal(t, "be terse", rc.Prompt)

	require.Len(t, fx.tier.calls, 1)
	assert.Equal(t, "zhangsan", fx.tier.calls[0])
}

func TestHandleInboundSkipsEvents(t *testing.T) {
	backend := &fakeBackend{}
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleInbound(context.Background(), testAccount(), models.InboundMessage{
		FromUser: "zhangsan",
		Kind:     models.MessageKindEvent,
		Event:    "subscribe",
	})

	assert.Empty(t, backend.requests)
	assert.Empty(t, fx.tier.calls)
}

func TestHandleInboundDeduplicates(t *testing.T) {
	backend := &fakeBackend{reply: models.OutboundMessage{Text: "pong"}}
	fx := newServiceFixture(t, backend, nil, nil)

	msg := textMessage("m1", "ping")
	fx.svc.HandleInbound(context.Background(), testAccount(), msg)
	fx.svc.HandleInbound(context.Background(), testAccount(), msg)

	// The platform redelivers on slow acks; the second copy is dropped.
	assert.Len(t, backend.requests, 1)

	fx.svc.HandleInbound(context.Background(), testAccount(), textMessage("m2", "ping again"))
	assert.Len(t, backend.requests, 2)
}

func TestHandleInboundEmptyReplyNotDispatched(t *testing.T) {
	backend := &fakeBackend{} // zero-value reply
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleInbound(context.Background(), testAccount(), textMessage("m1", "ping"))

	require.Len(t, backend.requests, 1)
	assert.Empty(t, fx.tier.calls)
	assert.Zero(t, fx.queue.Len("zhangsan"))
}

func TestHandleInboundBackendFailureSwallowed(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend down")}
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleInbound(context.Background(), testAccount(), textMessage("m1", "ping"))

	assert.Empty(t, fx.tier.calls)
	assert.Zero(t, fx.queue.Len("zhangsan"))
}

func TestHandleInboundRendersNonTextKinds(t *testing.T) {
	backend := &fakeBackend{}
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleInbound(context.Background(), testAccount(), models.InboundMessage{
		FromUser: "zhangsan",
		Kind:     models.MessageKindImage,
		MsgID:    "m1",
		PicURL:   "https://wx.example.com/pic.jpg",
		MediaID:  "MEDIA1",
	})

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "[image message]", backend.requests[0].Body)
	assert.Equal(t, []string{"https://wx.example.com/pic.jpg"}, backend.requests[0].MediaURLs)
}

func TestHandleInboundVoiceTranscription(t *testing.T) {
	account := testAccount()
	account.ASR = models.ASRConfig{Enabled: true}
	account.WeCom = models.WeComConfig{CorpID: "ww1", CorpSecret: "s1", AgentID: 7}

	voiceMsg := models.InboundMessage{
		FromUser: "zhangsan",
		Kind:     models.MessageKindVoice,
		MsgID:    "m1",
		MediaID:  "VOICE1",
		Format:   "amr",
	}

	t.Run("transcript replaces placeholder", func(t *testing.T) {
		backend := &fakeBackend{}
		api := &fakeAPI{downloadRes: []byte("amr-bytes")}
		tr := &fakeTranscriber{transcript: "order lunch at noon"}
		fx := newServiceFixture(t, backend, api, tr)

		fx.svc.HandleInbound(context.Background(), account, voiceMsg)

		require.Len(t, backend.requests, 1)
		assert.Equal(t, "[voice transcript]\norder lunch at noon", backend.requests[0].Body)
		assert.Equal(t, []byte("amr-bytes"), tr.audio)
	})

	t.Run("transcription failure keeps placeholder", func(t *testing.T) {
		backend := &fakeBackend{}
		api := &fakeAPI{downloadRes: []byte("amr-bytes")}
		tr := &fakeTranscriber{err: errors.New("engine offline")}
		fx := newServiceFixture(t, backend, api, tr)

		fx.svc.HandleInbound(context.Background(), account, voiceMsg)

		require.Len(t, backend.requests, 1)
		assert.Contains(t, backend.requests[0].Body, "[voice message]")
	})

	t.Run("no transcriber configured", func(t *testing.T) {
		backend := &fakeBackend{}
		fx := newServiceFixture(t, backend, nil, nil)

		fx.svc.HandleInbound(context.Background(), account, voiceMsg)

		require.Len(t, backend.requests, 1)
		assert.Contains(t, backend.requests[0].Body, "[voice message]")
		assert.Contains(t, backend.requests[0].Body, "format: amr")
	})

	t.Run("missing first-party credentials", func(t *testing.T) {
		bare := testAccount()
		bare.ASR = models.ASRConfig{Enabled: true}

		backend := &fakeBackend{}
		tr := &fakeTranscriber{transcript: "never used"}
		fx := newServiceFixture(t, backend, nil, tr)

		fx.svc.HandleInbound(context.Background(), bare, voiceMsg)

		require.Len(t, backend.requests, 1)
		assert.Contains(t, backend.requests[0].Body, "[voice message]")
	})
}

func TestHandleLegacyInbound(t *testing.T) {
	backend := &fakeBackend{reply: models.OutboundMessage{Text: "done"}}
	fx := newServiceFixture(t, backend, nil, nil)

	fx.svc.HandleLegacyInbound(context.Background(), testAccount(), "lisi@corp.example.com",
		"please summarize", []string{"file:///tmp/upload-1-report.pdf"})

	require.Len(t, backend.requests, 1)
	rc := backend.requests[0]
	assert.Equal(t, "lisi@corp.example.com", rc.From)
	assert.Equal(t, "please summarize", rc.Body)
	assert.Equal(t, "wecom:acct1:lisi@corp.example.com", rc.SessionKey)
	assert.Equal(t, []string{"file:///tmp/upload-1-report.pdf"}, rc.MediaURLs)

	require.Len(t, fx.tier.calls, 1)
}

func TestReplyDetectsMediaInText(t *testing.T) {
	backend := &fakeBackend{reply: models.OutboundMessage{Text: "here you go ![chart](/tmp/chart.png)"}}
	fx := newServiceFixture(t, backend, nil, nil)

	capture := &captureTier{}
	fx.svc.dispatcher.tiers = []DeliveryTier{capture}

	fx.svc.HandleInbound(context.Background(), testAccount(), textMessage("m1", "chart please"))

	require.Len(t, capture.msgs, 1)
	assert.Equal(t, "/tmp/chart.png", capture.msgs[0].MediaURL)
}

type captureTier struct {
	msgs []models.OutboundMessage
}

func (c *captureTier) Name() string { return "capture" }

func (c *captureTier) Deliver(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) (bool, error) {
	c.msgs = append(c.msgs, msg)
	return true, nil
}

func TestDetectMediaPath(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"markdown image", "look: ![chart](/data/out/chart.png)", "/data/out/chart.png"},
		{"markdown beats bare path", "![a](/a.png) also /b.jpg", "/a.png"},
		{"bare absolute path", "saved to /home/bot/report.pdf for you", "/home/bot/report.pdf"},
		{"home relative path", "see ~/downloads/pic.jpeg", "~/downloads/pic.jpeg"},
		{"backquoted path", "file at `/tmp/voice.mp3` ready", "/tmp/voice.mp3"},
		{"extension outside whitelist", "config at /etc/app/config.yaml", ""},
		{"bare filename ignored", "open readme.png", ""},
		{"plain text", "no media here", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMediaPath(tt.text))
		})
	}
}

func TestRenderInbound(t *testing.T) {
	tests := []struct {
		name      string
		msg       models.InboundMessage
		wantText  string
		wantMedia []string
	}{
		{
			name:     "text",
			msg:      models.InboundMessage{Kind: models.MessageKindText, Content: "hello"},
			wantText: "hello",
		},
		{
			name:      "image",
			msg:       models.InboundMessage{Kind: models.MessageKindImage, PicURL: "https://x/p.jpg"},
			wantText:  "[image message]",
			wantMedia: []string{"https://x/p.jpg"},
		},
		{
			name:     "voice",
			msg:      models.InboundMessage{Kind: models.MessageKindVoice, Format: "amr", MediaID: "V1"},
			wantText: "[voice message]\nformat: amr\nmedia id: V1",
		},
		{
			name:     "video",
			msg:      models.InboundMessage{Kind: models.MessageKindVideo, MediaID: "V2"},
			wantText: "[video message]\nmedia id: V2",
		},
		{
			name: "location",
			msg: models.InboundMessage{
				Kind:  models.MessageKindLocation,
				Label: "West Lake", LocationX: 30.25, LocationY: 120.15, Scale: 16,
			},
			wantText: "[location message]\nplace: West Lake\ncoordinates: 30.25, 120.15\nzoom: 16",
		},
		{
			name: "link",
			msg: models.InboundMessage{
				Kind:  models.MessageKindLink,
				Title: "Weekly report", Description: "numbers", URL: "https://x/r",
			},
			wantText: "[link message]\ntitle: Weekly report\ndescription: numbers\nurl: https://x/r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, media := renderInbound(tt.msg)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantMedia, media)
		})
	}
}
