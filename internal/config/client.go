// Package config loads the YAML configuration shared by the chat tools and
// persists newly issued account tokens back into it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

// DefaultPath is where the tools look for their config file.
const DefaultPath = "minechat.yaml"

// ClientConfig configures the writer and reader tools.
type ClientConfig struct {
	Server  ServerEndpoint `yaml:"server"`
	Account AccountConfig  `yaml:"account"`
	History HistoryConfig  `yaml:"history"`
}

// ServerEndpoint describes the chat server the tools talk to.
type ServerEndpoint struct {
	Host       string `yaml:"host"`
	ReaderPort int    `yaml:"reader_port"`
	WriterPort int    `yaml:"writer_port"`

	// Transport is "tcp" or "websocket".
	Transport      string        `yaml:"transport"`
	WebSocketPath  string        `yaml:"websocket_path"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AccountConfig holds the persisted credentials.
type AccountConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	// Nickname is the name the server assigned; informational only.
	Nickname string `yaml:"nickname,omitempty"`
}

// HistoryConfig configures where the reader stores chat history.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`

	// Database, when set, also stores every line in SQL.
	Database *database.Config `yaml:"database,omitempty"`
}

// DefaultClientConfig returns the public server defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server: ServerEndpoint{
			Host:           "minechat.dvmn.org",
			ReaderPort:     5000,
			WriterPort:     5050,
			Transport:      transport.KindTCP,
			WebSocketPath:  transport.DefaultWebSocketPath,
			ConnectTimeout: transport.DefaultConnectTimeout,
		},
		History: HistoryConfig{
			Path:       "history.txt",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadClientConfig loads the client configuration from a YAML file and
// applies environment overrides. A missing file yields the defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies the environment variables the chat tools have always
// honored.
func (c *ClientConfig) applyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("HISTORY"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("TOKEN"); v != "" {
		c.Account.Token = v
	}
	// Not USERNAME: Windows sets that to the login name of every session.
	if v := os.Getenv("MINECHAT_USERNAME"); v != "" {
		c.Account.Username = v
	}

	ports := []struct {
		env  string
		dest *int
	}{
		{"READER_PORT", &c.Server.ReaderPort},
		{"WRITER_PORT", &c.Server.WriterPort},
	}
	for _, p := range ports {
		v := os.Getenv(p.env)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s %q", p.env, v)
		}
		*p.dest = port
	}
	return nil
}

// WriterEndpoint returns the endpoint messages are submitted to.
func (c *ClientConfig) WriterEndpoint() transport.Endpoint {
	return transport.Endpoint{Host: c.Server.Host, Port: c.Server.WriterPort}
}

// ReaderEndpoint returns the endpoint chat history is read from.
func (c *ClientConfig) ReaderEndpoint() transport.Endpoint {
	return transport.Endpoint{Host: c.Server.Host, Port: c.Server.ReaderPort}
}

// Dialer builds the transport dialer the config selects.
func (c *ClientConfig) Dialer() (transport.Dialer, error) {
	return transport.NewDialer(c.Server.Transport, c.Server.ConnectTimeout, c.Server.WebSocketPath)
}
