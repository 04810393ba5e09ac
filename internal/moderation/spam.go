package moderation

import (
	"sync"
	"time"
)

// SpamTracker rate-limits the messages of one connection and rejects
// repeats inside the cooldown.
type SpamTracker struct {
	mu     sync.Mutex
	cfg    SpamConfig
	now    func() time.Time
	recent []time.Time          // send times inside the window
	last   map[string]time.Time // message -> last time it was allowed
}

func NewSpamTracker(cfg SpamConfig) *SpamTracker {
	return &SpamTracker{
		cfg:  cfg,
		now:  time.Now,
		last: make(map[string]time.Time),
	}
}

// SpamVerdict is the outcome of a spam check.
type SpamVerdict struct {
	Allowed bool
	Reason  string
	// Wait is how long until the same message would be allowed.
	Wait time.Duration
}

// Check records message and reports whether it may be published.
func (t *SpamTracker) Check(message string) SpamVerdict {
	if !t.cfg.Enabled {
		return SpamVerdict{Allowed: true}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expire(now)

	if sent, ok := t.last[message]; ok {
		return SpamVerdict{Reason: "repeated message", Wait: sent.Add(t.cfg.RepeatCooldown).Sub(now)}
	}
	if t.cfg.MaxMessages > 0 && len(t.recent) >= t.cfg.MaxMessages {
		return SpamVerdict{Reason: "too many messages", Wait: t.recent[0].Add(t.cfg.TimeWindow).Sub(now)}
	}

	t.recent = append(t.recent, now)
	t.last[message] = now
	return SpamVerdict{Allowed: true}
}

// expire drops entries that no longer count against the limits.
func (t *SpamTracker) expire(now time.Time) {
	cutoff := now.Add(-t.cfg.TimeWindow)
	kept := t.recent[:0]
	for _, sent := range t.recent {
		if sent.After(cutoff) {
			kept = append(kept, sent)
		}
	}
	t.recent = kept

	repeatCutoff := now.Add(-t.cfg.RepeatCooldown)
	for message, sent := range t.last {
		if !sent.After(repeatCutoff) {
			delete(t.last, message)
		}
	}
}
