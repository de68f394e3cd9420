package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                    = "REPLAY"
	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultDatabasePath          = "replay.db"
	defaultStoreDriver           = StoreDriverSQLite
	defaultLogLevel              = "info"
	defaultCookieName            = "replay_session"
	defaultIssuer                = "replay-auth"
	defaultTickIntervalMs        = 50
	defaultAcquireTimeoutSeconds = 10
	defaultTokenTTLMinutes       = 720
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	AllowedOrigins         []string
	DatabasePath           string
	StoreDriver            string
	LogLevel               string
	PauseOnUserInteraction bool
	EnableAudioSync        bool
	TickInterval           time.Duration
	AudioCaptureEnabled    bool
	AcquireTimeout         time.Duration
	AuthSigningSecret      string
	AuthIssuer             string
	AuthCookieName         string
	TokenTTL               time.Duration
}

// AuthEnabled reports whether session tokens are required on protected routes.
func (c AppConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.AuthSigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("store.driver", defaultStoreDriver)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("playback.pause_on_user_interaction", true)
	configViper.SetDefault("playback.enable_audio_sync", true)
	configViper.SetDefault("playback.tick_interval_ms", defaultTickIntervalMs)
	configViper.SetDefault("audio.capture_enabled", true)
	configViper.SetDefault("audio.acquire_timeout_seconds", defaultAcquireTimeoutSeconds)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		AllowedOrigins:         splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:           configViper.GetString("database.path"),
		StoreDriver:            strings.ToLower(strings.TrimSpace(configViper.GetString("store.driver"))),
		LogLevel:               configViper.GetString("log.level"),
		PauseOnUserInteraction: configViper.GetBool("playback.pause_on_user_interaction"),
		EnableAudioSync:        configViper.GetBool("playback.enable_audio_sync"),
		TickInterval:           time.Duration(configViper.GetInt("playback.tick_interval_ms")) * time.Millisecond,
		AudioCaptureEnabled:    configViper.GetBool("audio.capture_enabled"),
		AcquireTimeout:         time.Duration(configViper.GetInt("audio.acquire_timeout_seconds")) * time.Second,
		AuthSigningSecret:      configViper.GetString("auth.signing_secret"),
		AuthIssuer:             configViper.GetString("auth.issuer"),
		AuthCookieName:         configViper.GetString("auth.cookie_name"),
		TokenTTL:               time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverSQLite, StoreDriverMemory, c.StoreDriver)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("playback.tick_interval_ms must be positive")
	}
	if c.AuthEnabled() && strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	return nil
}

// splitOrigins accepts both list values and a comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
