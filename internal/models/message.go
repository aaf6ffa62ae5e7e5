package models

// MessageKind is the discriminant of an inbound WeCom message
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindImage    MessageKind = "image"
	MessageKindVoice    MessageKind = "voice"
	MessageKindVideo    MessageKind = "video"
	MessageKindLocation MessageKind = "location"
	MessageKindLink     MessageKind = "link"
	MessageKindEvent    MessageKind = "event"
)

// InboundMessage is a decoded WeCom callback message. Kind determines
// which of the optional fields are populated.
type InboundMessage struct {
	ToUser     string
	FromUser   string
	CreateTime int64
	Kind       MessageKind
	AgentID    int
	MsgID      string

	// text
	Content string

	// image / link cover
	PicURL string

	// image / voice / video
	MediaID string

	// voice
	Format string

	// video
	ThumbMediaID string

	// location
	LocationX float64
	LocationY float64
	Scale     int
	Label     string

	// link
	Title       string
	Description string
	URL         string

	// event
	Event string
}

// OutboundMessage is one reply payload headed back to a WeCom user
type OutboundMessage struct {
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// ReplyContext carries a normalized inbound message to the conversational backend
type ReplyContext struct {
	From       string   `json:"from"`
	Body       string   `json:"body"`
	AccountID  string   `json:"accountId"`
	SessionKey string   `json:"sessionKey"`
	MediaURLs  []string `json:"mediaUrls,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
}
