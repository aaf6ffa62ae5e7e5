package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/toboto/moltbot-wecom-channel/internal/constants"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/internal/security"
)

var (
	ErrMissingBackendURL = models.ConfigError{Message: "missing conversational backend URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir   = models.ConfigError{Message: "missing media cache directory"}
	ErrNoAccounts        = models.ConfigError{Message: "accounts array is required and must contain at least one account"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Backend.URL == "" {
		return ErrMissingBackendURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.CacheDir == "" {
		return ErrMissingMediaDir
	}

	if len(c.Accounts) == 0 {
		return ErrNoAccounts
	}

	ids := make(map[string]bool)
	prefixes := make(map[string]bool)
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.ID == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty id in account %d", i)}
		}
		if a.RoutePrefix == "" {
			a.RoutePrefix = constants.DefaultRoutePrefix
		}
		a.RoutePrefix = strings.Trim(a.RoutePrefix, "/")

		if ids[a.ID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate account id: %s", a.ID)}
		}
		if prefixes[a.RoutePrefix] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate route prefix: %s", a.RoutePrefix)}
		}
		ids[a.ID] = true
		prefixes[a.RoutePrefix] = true

		// An encrypted callback route needs both halves of the credential
		if (a.WeCom.Token == "") != (a.WeCom.EncodingAESKey == "") {
			return models.ConfigError{Message: fmt.Sprintf("account %s: token and encodingAESKey must be set together", a.ID)}
		}
	}

	if c.Media.MaxSizeMB.Image == 0 {
		c.Media.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Media.MaxSizeMB.Voice == 0 {
		c.Media.MaxSizeMB.Voice = constants.DefaultMaxVoiceSizeMB
	}
	if c.Media.MaxSizeMB.Video == 0 {
		c.Media.MaxSizeMB.Video = constants.DefaultMaxVideoSizeMB
	}
	if c.Media.MaxSizeMB.File == 0 {
		c.Media.MaxSizeMB.File = constants.DefaultMaxFileSizeMB
	}

	if len(c.Media.AllowedTypes.Image) == 0 {
		c.Media.AllowedTypes.Image = constants.DefaultImageTypes
	}
	if len(c.Media.AllowedTypes.Voice) == 0 {
		c.Media.AllowedTypes.Voice = constants.DefaultVoiceTypes
	}
	if len(c.Media.AllowedTypes.Video) == 0 {
		c.Media.AllowedTypes.Video = constants.DefaultVideoTypes
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Backend.TimeoutSec <= 0 {
		c.Backend.TimeoutSec = constants.DefaultBackendTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WECOM_BRIDGE_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}

	// SECURITY: backend credentials should come from the environment
	if token := os.Getenv("WECOM_BRIDGE_BACKEND_TOKEN"); token != "" {
		c.Backend.Token = token
	}

	if path := os.Getenv("WECOM_BRIDGE_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("WECOM_BRIDGE_MEDIA_DIR"); dir != "" {
		c.Media.CacheDir = dir
	}
	if level := os.Getenv("WECOM_BRIDGE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WECOM_BRIDGE_ENV") == "production"

	if isProduction {
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}

		for i := range c.Accounts {
			a := &c.Accounts[i]
			if a.WeCom.CorpSecret == "" && !a.Delivery().HasLegacy() && !a.Delivery().HasWebhook() {
				fmt.Fprintf(os.Stderr, "WARNING: account %s has no outbound credentials; replies will only reach the poll queue.\n", a.ID)
			}
		}
	}

	return nil
}
