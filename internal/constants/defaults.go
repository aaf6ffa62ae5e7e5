package constants

// Default server configuration values
const (
	DefaultServerPort            = 8083
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default delivery configuration values
const (
	DefaultSyncTimeoutMs     = 30000
	DefaultHTTPTimeoutSec    = 30
	DefaultBackendTimeoutSec = 120
	DefaultLegacyAPIURL      = "https://galaxy.ucloudadmin.com/"
	DefaultLegacyNamespace   = "企业智瞰"
	DefaultLegacyAction      = "Common.MessageWechat"
	DefaultRoutePrefix       = "wecom"
)

// Default database configuration values
const (
	DefaultRetentionDays         = 30
	DefaultDatabaseRetryAttempts = 3
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxMs          = 60000
)

// Default media configuration values
const (
	DefaultMaxImageSizeMB = 10
	DefaultMaxVoiceSizeMB = 2
	DefaultMaxVideoSizeMB = 10
	DefaultMaxFileSizeMB  = 20
)

// Privacy settings
const (
	DefaultRecipientMaskLength = 4
	DefaultMessageIDLength     = 8
)

// Encryption settings for the message log
const (
	NonceSize           = 12
	PBKDF2Iterations    = 100000
	EncryptionKeySize   = 32
	MinEncryptionSecret = 16
)
