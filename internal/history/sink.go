package history

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lawnchairsociety/minechat/internal/database"
)

// Sink receives every entry the reader hears.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// FileSink appends stamped lines to a history file, rotating it once it
// grows past MaxSizeMB.
type FileSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// NewFileSink opens (or creates) the history file at path.
// maxSizeMB and maxBackups of zero use lumberjack's defaults.
func NewFileSink(path string, maxSizeMB, maxBackups int) *FileSink {
	return &FileSink{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}}
}

func (s *FileSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.out, e.Stamped()+"\n"); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	return s.out.Close()
}

// ConsoleSink prints raw lines, without stamps, to an io.Writer.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (s *ConsoleSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, e.Text)
	return err
}

func (s *ConsoleSink) Close() error { return nil }

// DatabaseSink stores entries in the messages table.
type DatabaseSink struct {
	db *database.Database
}

// NewDatabaseSink wraps an open database. Closing the sink closes db.
func NewDatabaseSink(db *database.Database) *DatabaseSink {
	return &DatabaseSink{db: db}
}

func (s *DatabaseSink) Write(e Entry) error {
	_, err := s.db.AppendMessage(e.ReceivedAt, e.Text)
	return err
}

func (s *DatabaseSink) Close() error {
	return s.db.Close()
}
