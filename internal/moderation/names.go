package moderation

import "strings"

// NameFilter screens nicknames chosen at registration.
type NameFilter struct {
	enabled     bool
	bannedWords []string // lowercase, partial match
	bannedNames []string // lowercase, exact match
}

func NewNameFilter(cfg NamesConfig) *NameFilter {
	f := &NameFilter{enabled: cfg.Enabled}
	for _, word := range cfg.BannedWords {
		if word != "" {
			f.bannedWords = append(f.bannedWords, strings.ToLower(word))
		}
	}
	for _, name := range cfg.BannedNames {
		if name != "" {
			f.bannedNames = append(f.bannedNames, strings.ToLower(name))
		}
	}
	return f
}

// Allowed reports whether nickname may be registered, and why not.
func (f *NameFilter) Allowed(nickname string) (bool, string) {
	if !f.enabled {
		return true, ""
	}

	lower := strings.ToLower(strings.TrimSpace(nickname))
	for _, banned := range f.bannedNames {
		if lower == banned {
			return false, "name is banned"
		}
	}
	for _, word := range f.bannedWords {
		if strings.Contains(lower, word) {
			return false, "name contains a banned word"
		}
	}
	return true, ""
}
