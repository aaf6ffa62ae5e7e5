package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/toboto/moltbot-wecom-channel/internal/database"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/internal/privacy"
	"github.com/toboto/moltbot-wecom-channel/pkg/wecom"
)

// Reply text is scanned for media when the backend did not set an
// explicit media URL: first markdown image syntax, then a bare
// absolute or home-relative file path.
var (
	markdownImageRe = regexp.MustCompile(`(?i)!\[.*?\]\(([/~][^\s)]+\.(?:png|jpg|jpeg|gif|webp|bmp|mp4|avi|mov|mp3|wav|amr))\)`)
	filePathRe      = regexp.MustCompile("(?i)[`'\"]?([/~][^\\s`'\"<>]+\\.(?:png|jpg|jpeg|gif|webp|bmp|mp4|avi|mov|mp3|wav|amr|pdf))[`'\"]?")
)

// MessageService runs the inbound pipeline: dedup, event filtering,
// voice transcription, text rendering, the backend round trip, and the
// outbound dispatch of the reply.
type MessageService struct {
	backend     Backend
	dispatcher  *Dispatcher
	db          *database.Database
	api         wecom.API
	transcriber Transcriber
	logger      *logrus.Logger
}

// NewMessageService wires the inbound pipeline. transcriber may be nil
// when no speech engine is configured.
func NewMessageService(backend Backend, dispatcher *Dispatcher, db *database.Database, api wecom.API, transcriber Transcriber, logger *logrus.Logger) *MessageService {
	return &MessageService{
		backend:     backend,
		dispatcher:  dispatcher,
		db:          db,
		api:         api,
		transcriber: transcriber,
		logger:      logger,
	}
}

// HandleInbound processes one decoded callback message. It is run in a
// background goroutine after the webhook has already answered the
// platform; errors are logged, never surfaced to the closed response.
func (s *MessageService) HandleInbound(ctx context.Context, account *models.Account, msg models.InboundMessage) {
	log := s.logger.WithFields(logrus.Fields{
		"account": account.ID,
		"from":    privacy.MaskRecipientID(msg.FromUser),
		"kind":    string(msg.Kind),
	})

	if msg.Kind == models.MessageKindEvent {
		log.WithField("event", msg.Event).Debug("Skipping event message")
		return
	}

	fresh, err := s.db.MarkProcessed(ctx, msg.MsgID, msg.FromUser, account.ID)
	if err != nil {
		log.WithError(err).Warn("Dedup check failed, processing anyway")
	} else if !fresh {
		log.WithField("msg_id", privacy.MaskMessageID(msg.MsgID)).Info("Duplicate delivery, skipping")
		return
	}

	s.dispatcher.RecordRecipient(msg.FromUser)

	text, mediaURLs := renderInbound(msg)

	if msg.Kind == models.MessageKindVoice {
		if transcript := s.transcribeVoice(ctx, account, msg, log); transcript != "" {
			text = "[voice transcript]\n" + transcript
		}
	}

	rc := models.ReplyContext{
		From:       msg.FromUser,
		Body:       text,
		AccountID:  account.ID,
		SessionKey: fmt.Sprintf("wecom:%s:%s", account.ID, msg.FromUser),
		MediaURLs:  mediaURLs,
		Prompt:     account.SystemPrompt,
	}

	s.Reply(ctx, account, rc)
}

// HandleLegacyInbound processes a message that arrived on the legacy
// JSON/multipart path, already reduced to text and media references.
func (s *MessageService) HandleLegacyInbound(ctx context.Context, account *models.Account, from, text string, mediaURLs []string) {
	s.dispatcher.RecordRecipient(from)

	rc := models.ReplyContext{
		From:       from,
		Body:       text,
		AccountID:  account.ID,
		SessionKey: fmt.Sprintf("wecom:%s:%s", account.ID, from),
		MediaURLs:  mediaURLs,
		Prompt:     account.SystemPrompt,
	}

	s.Reply(ctx, account, rc)
}

// Reply runs the backend round trip and dispatches whatever comes back
func (s *MessageService) Reply(ctx context.Context, account *models.Account, rc models.ReplyContext) {
	log := s.logger.WithFields(logrus.Fields{
		"account": account.ID,
		"from":    privacy.MaskRecipientID(rc.From),
	})

	ctx = WithDeliveryContext(ctx, DeliveryContext{
		RecipientHint: rc.From,
		AccountID:     account.ID,
	})

	reply, err := s.backend.Reply(ctx, rc)
	if err != nil {
		log.WithError(err).Error("Backend round trip failed")
		return
	}

	if reply.Text == "" && reply.MediaURL == "" {
		log.Debug("Backend returned an empty reply, nothing to send")
		return
	}

	if reply.MediaURL == "" {
		reply.MediaURL = DetectMediaPath(reply.Text)
	}

	s.dispatcher.Send(ctx, rc.From, reply, account.Delivery())
}

// DetectMediaPath extracts a media reference embedded in reply text,
// preferring markdown image syntax over a bare file path.
func DetectMediaPath(text string) string {
	if text == "" {
		return ""
	}
	if m := markdownImageRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := filePathRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func (s *MessageService) transcribeVoice(ctx context.Context, account *models.Account, msg models.InboundMessage, log *logrus.Entry) string {
	if s.transcriber == nil || !account.ASR.Enabled {
		log.Debug("Voice transcription not configured, forwarding placeholder")
		return ""
	}
	if s.api == nil || !account.Delivery().HasFirstParty() {
		log.Warn("Voice transcription needs first-party credentials to download media")
		return ""
	}

	audio, err := s.api.DownloadMedia(ctx, account.WeCom.CorpID, account.WeCom.CorpSecret, msg.MediaID)
	if err != nil {
		log.WithError(err).Warn("Voice download failed")
		return ""
	}

	transcript, err := s.transcriber.Transcribe(ctx, audio, msg.Format)
	if err != nil {
		log.WithError(err).Warn("Voice transcription failed")
		return ""
	}

	log.Info("Voice message transcribed")
	return transcript
}

// renderInbound reduces a typed inbound message to the text the backend
// receives, plus any media URLs worth forwarding alongside it.
func renderInbound(msg models.InboundMessage) (string, []string) {
	var mediaURLs []string

	switch msg.Kind {
	case models.MessageKindText:
		return msg.Content, nil
	case models.MessageKindImage:
		if msg.PicURL != "" {
			mediaURLs = append(mediaURLs, msg.PicURL)
		}
		return "[image message]", mediaURLs
	case models.MessageKindVoice:
		return fmt.Sprintf("[voice message]\nformat: %s\nmedia id: %s", msg.Format, msg.MediaID), nil
	case models.MessageKindVideo:
		return fmt.Sprintf("[video message]\nmedia id: %s", msg.MediaID), nil
	case models.MessageKindLocation:
		return fmt.Sprintf("[location message]\nplace: %s\ncoordinates: %g, %g\nzoom: %d",
			msg.Label, msg.LocationX, msg.LocationY, msg.Scale), nil
	case models.MessageKindLink:
		if msg.PicURL != "" {
			mediaURLs = append(mediaURLs, msg.PicURL)
		}
		return fmt.Sprintf("[link message]\ntitle: %s\ndescription: %s\nurl: %s",
			msg.Title, msg.Description, msg.URL), mediaURLs
	default:
		return "[unsupported message]", nil
	}
}
