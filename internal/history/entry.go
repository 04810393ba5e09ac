// Package history follows the chat's reader port and records every line it
// hears, stamped with the local time it arrived.
package history

import "time"

// stampLayout renders times as [dd.mm.yy HH:MM].
const stampLayout = "[02.01.06 15:04]"

// Entry is one chat line as received.
type Entry struct {
	ReceivedAt time.Time
	Text       string
}

// Stamped returns the line prefixed with its local arrival time.
func (e Entry) Stamped() string {
	return e.ReceivedAt.Local().Format(stampLayout) + " " + e.Text
}
