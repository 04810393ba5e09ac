package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/moderation"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

// ServerConfig holds settings for the local development server.
type ServerConfig struct {
	Listen      ListenConfig      `yaml:"listen"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Connections ConnectionsConfig `yaml:"connections"`
	TokenGuard  TokenGuardConfig  `yaml:"token_guard"`
	Moderation  moderation.Config `yaml:"moderation"`
	Database    database.Config   `yaml:"database"`
}

// ListenConfig holds the listener addresses. A zero port disables the listener.
type ListenConfig struct {
	Host          string `yaml:"host"`
	WriterPort    int    `yaml:"writer_port"`
	ReaderPort    int    `yaml:"reader_port"`
	WebSocketPort int    `yaml:"websocket_port"`
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent connections allowed from a single IP address.
	// 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent connections to the server.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// TokenGuardConfig holds lockout settings for addresses that keep
// presenting unknown tokens.
type TokenGuardConfig struct {
	// MaxAttempts is the number of unknown tokens before a lockout. 0 disables the guard.
	MaxAttempts       int `yaml:"max_attempts"`
	LockoutSeconds    int `yaml:"lockout_seconds"`
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	Path string `yaml:"path"`

	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy. "*" allows all origins.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultServerConfig returns a ServerConfig bound to localhost.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen: ListenConfig{
			Host:          "127.0.0.1",
			WriterPort:    5050,
			ReaderPort:    5000,
			WebSocketPort: 8080,
		},
		WebSocket: WebSocketConfig{
			Path:           transport.DefaultWebSocketPath,
			AllowedOrigins: []string{},
			MaxMessageSize: 4096,
		},
		Connections: ConnectionsConfig{
			MaxPerIP: 8,
			MaxTotal: 100,
		},
		TokenGuard: TokenGuardConfig{
			MaxAttempts:       5,
			LockoutSeconds:    30,
			MaxLockoutSeconds: 300,
		},
		Moderation: moderation.DefaultConfig(),
		Database: database.DefaultConfig("data/minechat.db"),
	}
}

// LoadServerConfig loads the dev server configuration from the `devserver:`
// section of a YAML file. A missing file yields the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	wrapper := struct {
		DevServer *ServerConfig `yaml:"devserver"`
	}{DevServer: DefaultServerConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return wrapper.DevServer, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return wrapper.DevServer, nil
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means a non-browser client
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
