package moderation

import (
	"regexp"
	"strings"
)

// WordResult contains the outcome of filtering a message.
type WordResult struct {
	Filtered string // The message with replacements applied in REPLACE mode
	Violated bool
	Matched  []string
}

// Blocked reports whether the message must be dropped.
func (r WordResult) Blocked(mode Mode) bool {
	return r.Violated && mode == ModeBlock
}

// WordFilter finds banned words in chat messages.
type WordFilter struct {
	enabled  bool
	mode     Mode
	patterns map[string]*regexp.Regexp
	order    []string
}

// NewWordFilter pre-compiles a whole-word, case-insensitive pattern per word.
func NewWordFilter(cfg WordsConfig) *WordFilter {
	f := &WordFilter{
		enabled:  cfg.Enabled,
		mode:     cfg.Mode,
		patterns: make(map[string]*regexp.Regexp, len(cfg.BannedWords)),
	}
	if f.mode == "" {
		f.mode = ModeReplace
	}

	for _, word := range cfg.BannedWords {
		if word == "" {
			continue
		}
		if _, dup := f.patterns[word]; dup {
			continue
		}
		f.patterns[word] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		f.order = append(f.order, word)
	}
	return f
}

// Mode returns the configured handling of violations.
func (f *WordFilter) Mode() Mode {
	return f.mode
}

// Check filters a message.
func (f *WordFilter) Check(message string) WordResult {
	result := WordResult{Filtered: message}
	if !f.enabled {
		return result
	}

	for _, word := range f.order {
		pattern := f.patterns[word]
		if !pattern.MatchString(message) {
			continue
		}
		result.Violated = true
		result.Matched = append(result.Matched, word)

		if f.mode == ModeReplace {
			result.Filtered = pattern.ReplaceAllStringFunc(result.Filtered, func(match string) string {
				return strings.Repeat("*", len([]rune(match)))
			})
		}
	}
	return result
}
