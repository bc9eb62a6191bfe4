// Package config provides configuration loading and validation for the
// botgate proxy. It reads config.yaml, applies defaults, allows BOTGATE_*
// environment overrides, and validates the result.
package config

import "time"

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultDBPath            = "botgate.db"
	DefaultDBMaxOpenConns    = 1
	DefaultDBMaxIdleConns    = 1
	DefaultDBConnMaxLifetime = 5 * time.Minute

	DefaultServerListenAddr   = ":8080"
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 60 * time.Second

	DefaultTelegramAPIURL          = "https://api.telegram.org/bot"
	DefaultTelegramFileAPIURL      = "https://api.telegram.org/file/bot"
	DefaultTelegramRequestTimeout  = 60 * time.Second
	DefaultTelegramRedirectTimeout = 10 * time.Second
	DefaultTelegramFetchTimeout    = 15 * time.Second
)

// Config defines the application configuration for all botgate components.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig controls the SQLite connection pool.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"              validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=1s"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"   validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"min=1s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=1s"`
}

// TelegramConfig controls access to the upstream Bot API.
type TelegramConfig struct {
	APIURL          string        `mapstructure:"api_url"          validate:"required,url"`
	FileAPIURL      string        `mapstructure:"file_api_url"     validate:"required,url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  validate:"min=1s,max=10m"`
	RedirectTimeout time.Duration `mapstructure:"redirect_timeout" validate:"min=1s,max=5m"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"    validate:"min=1s,max=5m"`
}

// CryptoConfig holds the credential encryption key. The key is base64 and
// must decode to exactly 32 bytes (AES-256).
type CryptoConfig struct {
	Key string `mapstructure:"key" validate:"required,base64"`
}
