package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/middleware"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/internal/privacy"
	"github.com/toboto/moltbot-wecom-channel/internal/service"
	"github.com/toboto/moltbot-wecom-channel/pkg/wecom"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxCallbackBodyBytes = 32 << 20

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	cfg        *models.Config
	msgService *service.MessageService
	dispatcher *service.Dispatcher
	server     *http.Server
}

func NewServer(cfg *models.Config, msgService *service.MessageService, dispatcher *service.Dispatcher, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		msgService: msgService,
		dispatcher: dispatcher,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	for i := range s.cfg.Accounts {
		account := &s.cfg.Accounts[i]
		if !account.IsEnabled() {
			s.logger.WithField(service.LogFieldAccount, account.ID).Info("Account disabled, skipping routes")
			continue
		}

		sub := s.router.PathPrefix("/" + account.RoutePrefix).Subrouter()
		sub.Use(middleware.CallbackObservabilityMiddleware(s.logger, account.RoutePrefix))
		sub.HandleFunc("/message", s.handleHandshake(account)).Methods(http.MethodGet)
		sub.HandleFunc("/message", s.handleCallback(account)).Methods(http.MethodPost)
		sub.HandleFunc("/messages", s.handlePoll()).Methods(http.MethodGet)

		s.logger.WithFields(logrus.Fields{
			service.LogFieldAccount: account.ID,
			"route_prefix":          account.RoutePrefix,
		}).Info("Registered account routes")
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// handleHandshake answers the WeCom URL-verification challenge: verify
// the signature over echostr, decrypt it, echo the plaintext back.
func (s *Server) handleHandshake(account *models.Account) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		msgSignature := q.Get("msg_signature")
		timestamp := q.Get("timestamp")
		nonce := q.Get("nonce")
		echostr := q.Get("echostr")

		creds := account.WeCom
		if creds.Token == "" {
			http.Error(w, "Token not configured", http.StatusInternalServerError)
			return
		}

		if msgSignature == "" || timestamp == "" || nonce == "" || echostr == "" {
			http.Error(w, "Missing required parameters", http.StatusBadRequest)
			return
		}

		if !wecom.VerifySignature(creds.Token, timestamp, nonce, echostr, msgSignature) {
			s.logger.WithField(service.LogFieldAccount, account.ID).Warn("Handshake signature mismatch")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}

		if creds.EncodingAESKey == "" || creds.CorpID == "" {
			http.Error(w, "encodingAESKey or corpid not configured", http.StatusInternalServerError)
			return
		}

		echo, err := wecom.DecryptMessage(creds.EncodingAESKey, echostr, creds.CorpID)
		if err != nil {
			s.logger.WithField(service.LogFieldAccount, account.ID).WithError(err).Error("Handshake decryption failed")
			http.Error(w, "Decryption failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(echo))
	}
}

// handleCallback branches on the body format: encrypted XML from the
// platform, or the legacy JSON/multipart surface.
func (s *Server) handleCallback(account *models.Account) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")

		encrypted := strings.Contains(contentType, "text/xml") ||
			strings.Contains(contentType, "application/xml") ||
			r.URL.Query().Has("msg_signature")

		if encrypted {
			s.handleEncryptedCallback(w, r, account)
		} else {
			s.handleLegacyCallback(w, r, account, contentType)
		}
	}
}

func (s *Server) handleEncryptedCallback(w http.ResponseWriter, r *http.Request, account *models.Account) {
	q := r.URL.Query()
	msgSignature := q.Get("msg_signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")

	creds := account.WeCom
	if creds.Token == "" || creds.EncodingAESKey == "" || creds.CorpID == "" {
		http.Error(w, "Token, encodingAESKey or corpid not configured", http.StatusInternalServerError)
		return
	}

	if msgSignature == "" || timestamp == "" || nonce == "" {
		http.Error(w, "Missing signature parameters", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	cipherText, err := wecom.DecodeEncryptedEnvelope(body)
	if err != nil {
		http.Error(w, "Missing Encrypt field in XML", http.StatusBadRequest)
		return
	}

	if !wecom.VerifySignature(creds.Token, timestamp, nonce, cipherText, msgSignature) {
		s.logger.WithField(service.LogFieldAccount, account.ID).Warn("Callback signature mismatch")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	plainXML, err := wecom.DecryptMessage(creds.EncodingAESKey, cipherText, creds.CorpID)
	if err != nil {
		s.logger.WithField(service.LogFieldAccount, account.ID).WithError(err).Error("Callback decryption failed")
		http.Error(w, "Decryption failed", http.StatusInternalServerError)
		return
	}

	msg, err := wecom.DecodeMessage(plainXML)
	if err != nil {
		s.logger.WithField(service.LogFieldAccount, account.ID).WithError(err).Error("Callback decode failed")
		http.Error(w, "Invalid message", http.StatusBadRequest)
		return
	}

	// Answer inside the platform's 5-second budget; the backend round
	// trip continues in the background.
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))

	bgCtx := context.WithoutCancel(r.Context())
	go s.msgService.HandleInbound(bgCtx, account, *msg)
}

type legacyRequest struct {
	Email    string `json:"email"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	Sync     bool   `json:"sync"`
}

func (s *Server) handleLegacyCallback(w http.ResponseWriter, r *http.Request, account *models.Account, contentType string) {
	var req legacyRequest
	var files []wecom.FormFile

	switch {
	case strings.Contains(contentType, "application/json"):
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
		if err != nil || len(body) == 0 {
			http.Error(w, "Empty body", http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

	case strings.Contains(contentType, "multipart/form-data"):
		boundary := multipartBoundary(contentType)
		if boundary == "" {
			http.Error(w, "No boundary", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		form := wecom.ParseMultipart(body, boundary)
		req.Email = form.Fields["email"]
		req.Text = form.Fields["text"]
		req.Sync = form.Fields["sync"] == "true"
		files = form.Files

	default:
		http.Error(w, "Unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	if req.Email == "" {
		http.Error(w, "Missing email", http.StatusBadRequest)
		return
	}

	text, mediaURLs := s.prepareLegacyPayload(req, files)

	bgCtx := context.WithoutCancel(r.Context())

	if req.Sync {
		// Register before processing starts so a fast reply cannot miss
		// the pending request. The response stays open until the
		// dispatcher fulfills it, a newer sync request supersedes it, or
		// the timeout fires.
		pr := s.dispatcher.RegisterSync(req.Email)

		// The hold outlasts the server's write timeout; extend this
		// connection's deadline so the fulfillment or the accepted status
		// can still be written when it fires.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(s.dispatcher.SyncTimeout() + 5*time.Second)); err != nil {
			s.logger.WithError(err).Debug("Failed to extend write deadline for held response")
		}

		go s.msgService.HandleLegacyInbound(bgCtx, account, req.Email, text, mediaURLs)
		res := pr.Wait()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		w.Write(res.Body)
		return
	}

	go s.msgService.HandleLegacyInbound(bgCtx, account, req.Email, text, mediaURLs)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// prepareLegacyPayload saves uploaded files to the media cache and
// enriches the forwarded text with file listings and the recipient id
// hint the backend needs for media replies.
func (s *Server) prepareLegacyPayload(req legacyRequest, files []wecom.FormFile) (string, []string) {
	var mediaURLs []string
	if req.ImageURL != "" {
		mediaURLs = append(mediaURLs, req.ImageURL)
	}

	text := req.Text
	var saved []string
	for _, f := range files {
		path, err := s.saveUpload(f)
		if err != nil {
			s.logger.WithError(err).WithField("file_name", f.Filename).Warn("Failed to save uploaded file")
			continue
		}
		mediaURLs = append(mediaURLs, "file://"+path)
		saved = append(saved, fmt.Sprintf("- %s: %s", f.Filename, path))
	}
	if len(saved) > 0 {
		text += "\n\n[uploaded files]\n" + strings.Join(saved, "\n")
	}

	text += fmt.Sprintf("\n\n[system: to deliver media files, the recipient id is: %s]", req.Email)
	return text, mediaURLs
}

func (s *Server) saveUpload(f wecom.FormFile) (string, error) {
	if err := os.MkdirAll(s.cfg.Media.CacheDir, 0o750); err != nil {
		return "", err
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	name := fmt.Sprintf("upload-%s-%s", hex.EncodeToString(buf), filepath.Base(f.Filename))
	path := filepath.Join(s.cfg.Media.CacheDir, name)

	if err := os.WriteFile(path, f.Data, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// handlePoll drains the queued messages for the given recipient
func (s *Server) handlePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			http.Error(w, "Missing email param", http.StatusBadRequest)
			return
		}

		msgs := s.dispatcher.DrainQueue(email)
		if msgs == nil {
			msgs = []models.OutboundMessage{}
		}

		s.logger.WithFields(logrus.Fields{
			service.LogFieldRecipient: privacy.MaskRecipientID(email),
			service.LogFieldCount:     len(msgs),
		}).Debug("Drained queued messages")

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"messages": msgs}); err != nil {
			s.logger.WithError(err).Error("Failed to encode poll response")
		}
	}
}

func multipartBoundary(contentType string) string {
	_, after, ok := strings.Cut(contentType, "boundary=")
	if !ok {
		return ""
	}
	boundary, _, _ := strings.Cut(after, ";")
	return strings.Trim(boundary, `"`)
}
