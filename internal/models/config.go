package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Accounts []Account      `json:"accounts"`
	Backend  BackendConfig  `json:"backend"`
	Database DatabaseConfig `json:"database"`
	Media    MediaConfig    `json:"media"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// Account describes one WeCom application served by the bridge.
// All credential groups are optional; an absent group simply disables
// the corresponding delivery tier.
type Account struct {
	ID           string        `json:"id"`
	RoutePrefix  string        `json:"route_prefix"`
	Enabled      *bool         `json:"enabled,omitempty"`
	WeCom        WeComConfig   `json:"wecom"`
	Legacy       LegacyConfig  `json:"legacy"`
	Webhook      WebhookConfig `json:"webhook"`
	ASR          ASRConfig     `json:"asr"`
	SystemPrompt string        `json:"system_prompt"`
}

// WeComConfig holds the first-party WeCom application credentials
type WeComConfig struct {
	CorpID         string `json:"corpid"`
	CorpSecret     string `json:"corpsecret"`
	AgentID        int    `json:"agentid"`
	Token          string `json:"token"`
	EncodingAESKey string `json:"encodingAESKey"`
}

// LegacyConfig holds the wrapped legacy messaging API credentials
type LegacyConfig struct {
	APIURL    string `json:"api_url"`
	Namespace string `json:"namespace"`
	Token     string `json:"token"`
	Code      string `json:"code"`
}

// WebhookConfig holds the generic outbound webhook settings
type WebhookConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// ASRConfig enables the optional speech-recognition collaborator
type ASRConfig struct {
	Enabled   bool   `json:"enabled"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
}

// BackendConfig points at the conversational backend the bridge forwards to
type BackendConfig struct {
	URL        string `json:"url"`
	Token      string `json:"token"`
	TimeoutSec int    `json:"timeoutSec"`
}

// DatabaseConfig holds message-log database configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media related configuration
type MediaConfig struct {
	CacheDir     string            `json:"cache_dir"`
	MaxSizeMB    MediaSizeLimits   `json:"maxSizeMB"`
	AllowedTypes MediaAllowedTypes `json:"allowedTypes"`
}

// MediaSizeLimits defines size limits for the WeCom media categories in MB
type MediaSizeLimits struct {
	Image int `json:"image"`
	Voice int `json:"voice"`
	Video int `json:"video"`
	File  int `json:"file"`
}

// MediaAllowedTypes defines allowed file extensions for the WeCom media categories
type MediaAllowedTypes struct {
	Image []string `json:"image"`
	Voice []string `json:"voice"`
	Video []string `json:"video"`
}

// RetryConfig holds startup retry configuration
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// IsEnabled reports whether the account should be served
func (a *Account) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Delivery collects the per-account credential bags consumed by the
// outbound dispatcher. Absent credentials skip the corresponding tier.
func (a *Account) Delivery() DeliveryConfig {
	return DeliveryConfig{
		WeCom:   a.WeCom,
		Legacy:  a.Legacy,
		Webhook: a.Webhook,
	}
}

// DeliveryConfig is the per-send bag of optional tier credentials
type DeliveryConfig struct {
	WeCom   WeComConfig
	Legacy  LegacyConfig
	Webhook WebhookConfig
}

// HasFirstParty reports whether the first-party API tier is configured
func (c DeliveryConfig) HasFirstParty() bool {
	return c.WeCom.CorpID != "" && c.WeCom.CorpSecret != "" && c.WeCom.AgentID != 0
}

// HasLegacy reports whether the legacy wrapped API tier is configured
func (c DeliveryConfig) HasLegacy() bool {
	return c.Legacy.Token != "" && c.Legacy.Code != ""
}

// HasWebhook reports whether the generic webhook tier is configured
func (c DeliveryConfig) HasWebhook() bool {
	return c.Webhook.URL != ""
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
