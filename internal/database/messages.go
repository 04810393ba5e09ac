package database

import (
	"errors"
	"fmt"
	"time"
)

// Message is one chat line as it was received.
type Message struct {
	ID         int64
	ReceivedAt time.Time
	Body       string
}

// AppendMessage stores a chat line and returns its id.
func (d *Database) AppendMessage(receivedAt time.Time, body string) (int64, error) {
	id, err := d.insert(
		"INSERT INTO messages (received_at, body) VALUES (?, ?)",
		receivedAt.UTC(), body,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return id, nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (d *Database) RecentMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	rows, err := d.db.Query(
		d.qb.Build("SELECT id, received_at, body FROM messages ORDER BY id DESC LIMIT ?"),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ReceivedAt, &m.Body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountMessages returns the number of stored messages.
func (d *Database) CountMessages() (int, error) {
	var count int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
