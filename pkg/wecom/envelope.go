package wecom

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

var (
	// ErrMissingEncrypt indicates the outer envelope has no Encrypt element
	ErrMissingEncrypt = errors.New("missing Encrypt field in XML")
	// ErrMissingRequiredFields indicates ToUserName, FromUserName or MsgType is absent
	ErrMissingRequiredFields = errors.New("missing required message fields")
)

// encryptedEnvelope is the outer wrapper WeCom posts to the callback URL.
// Some gateways emit a lowercase element name, so both spellings are accepted.
type encryptedEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      string   `xml:"Encrypt"`
	EncryptLower string   `xml:"encrypt"`
	AgentID      string   `xml:"AgentID"`
}

// DecodeEncryptedEnvelope extracts the base64 ciphertext from the outer
// callback envelope.
func DecodeEncryptedEnvelope(body []byte) (string, error) {
	var env encryptedEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("failed to parse callback envelope: %w", err)
	}

	encrypted := env.Encrypt
	if encrypted == "" {
		encrypted = env.EncryptLower
	}
	if encrypted == "" {
		return "", ErrMissingEncrypt
	}

	return strings.TrimSpace(encrypted), nil
}

// rawMessage mirrors the decrypted message XML with every field as text;
// coercion happens in DecodeMessage so upstream leniency is preserved.
type rawMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   string   `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	AgentID      string   `xml:"AgentID"`
	MsgID        string   `xml:"MsgId"`
	Content      string   `xml:"Content"`
	PicURL       string   `xml:"PicUrl"`
	MediaID      string   `xml:"MediaId"`
	Format       string   `xml:"Format"`
	ThumbMediaID string   `xml:"ThumbMediaId"`
	LocationX    string   `xml:"Location_X"`
	LocationY    string   `xml:"Location_Y"`
	Scale        string   `xml:"Scale"`
	Label        string   `xml:"Label"`
	Title        string   `xml:"Title"`
	Description  string   `xml:"Description"`
	URL          string   `xml:"Url"`
	Event        string   `xml:"Event"`
}

// DecodeMessage parses a decrypted WeCom message into its tagged variant.
// Numeric fields coerce leniently to zero on malformed input, mirroring
// the upstream gateway; an unknown MsgType is an error, not a default.
func DecodeMessage(xmlText string) (*models.InboundMessage, error) {
	var raw rawMessage
	if err := xml.Unmarshal([]byte(xmlText), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse message XML: %w", err)
	}

	if raw.ToUserName == "" || raw.FromUserName == "" || raw.MsgType == "" {
		return nil, ErrMissingRequiredFields
	}

	msg := &models.InboundMessage{
		ToUser:     strings.TrimSpace(raw.ToUserName),
		FromUser:   strings.TrimSpace(raw.FromUserName),
		CreateTime: lenientInt64(raw.CreateTime),
		AgentID:    lenientInt(raw.AgentID),
		MsgID:      strings.TrimSpace(raw.MsgID),
	}

	switch models.MessageKind(raw.MsgType) {
	case models.MessageKindText:
		msg.Kind = models.MessageKindText
		msg.Content = raw.Content
	case models.MessageKindImage:
		msg.Kind = models.MessageKindImage
		msg.PicURL = raw.PicURL
		msg.MediaID = raw.MediaID
	case models.MessageKindVoice:
		msg.Kind = models.MessageKindVoice
		msg.MediaID = raw.MediaID
		msg.Format = raw.Format
	case models.MessageKindVideo:
		msg.Kind = models.MessageKindVideo
		msg.MediaID = raw.MediaID
		msg.ThumbMediaID = raw.ThumbMediaID
	case models.MessageKindLocation:
		msg.Kind = models.MessageKindLocation
		msg.LocationX = lenientFloat(raw.LocationX)
		msg.LocationY = lenientFloat(raw.LocationY)
		msg.Scale = lenientInt(raw.Scale)
		msg.Label = raw.Label
	case models.MessageKindLink:
		msg.Kind = models.MessageKindLink
		msg.Title = raw.Title
		msg.Description = raw.Description
		msg.URL = raw.URL
		msg.PicURL = raw.PicURL
	case models.MessageKindEvent:
		msg.Kind = models.MessageKindEvent
		msg.Event = raw.Event
	default:
		return nil, fmt.Errorf("unsupported message type: %s", raw.MsgType)
	}

	return msg, nil
}

func lenientInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func lenientInt(s string) int {
	return int(lenientInt64(s))
}

func lenientFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
