package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// LogEntry is one captured log line.
type LogEntry struct {
	Level   string
	Message string
}

// RecordingLogger captures log lines for assertions. It satisfies
// logging.Logger.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *RecordingLogger) Debug(format string, args ...any) { l.record("debug", format, args...) }
func (l *RecordingLogger) Info(format string, args ...any)  { l.record("info", format, args...) }
func (l *RecordingLogger) Warn(format string, args ...any)  { l.record("warn", format, args...) }
func (l *RecordingLogger) Error(format string, args ...any) { l.record("error", format, args...) }

func (l *RecordingLogger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Entries returns a copy of everything logged so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns how many entries were logged at level.
func (l *RecordingLogger) Count(level string) int {
	n := 0
	for _, entry := range l.Entries() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

// Contains reports whether any entry at level contains substr.
func (l *RecordingLogger) Contains(level, substr string) bool {
	for _, entry := range l.Entries() {
		if entry.Level == level && strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}
