// Package moderation screens what the dev server accepts: banned words in
// messages, banned nicknames, and message flooding.
package moderation

import "time"

// Mode determines how a banned word in a message is handled.
type Mode string

const (
	ModeReplace Mode = "REPLACE" // Replace banned words with asterisks
	ModeBlock   Mode = "BLOCK"   // Drop the entire message
)

// Config holds every moderation setting.
type Config struct {
	Words WordsConfig `yaml:"words"`
	Names NamesConfig `yaml:"names"`
	Spam  SpamConfig  `yaml:"spam"`
}

// WordsConfig configures the message word filter.
type WordsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Mode        Mode     `yaml:"mode"`
	BannedWords []string `yaml:"banned_words"`
}

// NamesConfig configures nickname screening at registration.
type NamesConfig struct {
	Enabled bool `yaml:"enabled"`
	// BannedWords reject any nickname containing them.
	BannedWords []string `yaml:"banned_words"`
	// BannedNames reject exact nicknames, case-insensitively.
	BannedNames []string `yaml:"banned_names"`
}

// SpamConfig configures per-connection flood protection.
type SpamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxMessages    int           `yaml:"max_messages"`
	TimeWindow     time.Duration `yaml:"time_window"`
	RepeatCooldown time.Duration `yaml:"repeat_cooldown"`
}

// DefaultConfig enables flood protection only; word and name lists start empty.
func DefaultConfig() Config {
	return Config{
		Words: WordsConfig{Mode: ModeReplace},
		Spam: SpamConfig{
			Enabled:        true,
			MaxMessages:    5,
			TimeWindow:     10 * time.Second,
			RepeatCooldown: 30 * time.Second,
		},
	}
}
