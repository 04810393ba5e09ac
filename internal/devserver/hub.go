package devserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lawnchairsociety/minechat/internal/database"
)

// subscriberBuffer is how many lines a slow reader may fall behind before
// lines are dropped for it.
const subscriberBuffer = 64

// Hub stores chat lines and fans them out to connected readers.
type Hub struct {
	db  *database.Database
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewHub(db *database.Database, log *slog.Logger) *Hub {
	return &Hub{db: db, log: log, subs: make(map[chan string]struct{})}
}

// Publish stores a line and delivers it to every subscriber.
func (h *Hub) Publish(line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.AppendMessage(time.Now(), line); err != nil {
		return err
	}
	for ch := range h.subs {
		select {
		case ch <- line:
		default:
			h.log.Warn("reader too slow, dropping line")
		}
	}
	return nil
}

// Subscribe returns up to backlog stored lines and a channel of every line
// published afterwards. No line is both in the backlog and on the channel.
func (h *Hub) Subscribe(backlog int) ([]string, <-chan string, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var lines []string
	if backlog > 0 {
		messages, err := h.db.RecentMessages(backlog)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, m := range messages {
			lines = append(lines, m.Body)
		}
	}

	ch := make(chan string, subscriberBuffer)
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, ch)
	}
	return lines, ch, cancel, nil
}

// Subscribers returns the number of connected readers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
