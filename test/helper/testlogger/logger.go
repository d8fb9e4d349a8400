// Package testlogger provides a log.Logger that records entries for assertions
package testlogger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-commons/commons/log"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Level   string
	Message string
	Fields  []any
}

type sink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// TestLogger implements log.Logger. Loggers derived with WithFields share
// the parent's entries.
type TestLogger struct {
	sink   *sink
	fields []any
}

// New creates a new TestLogger
func New() *TestLogger {
	return &TestLogger{sink: &sink{}}
}

func (l *TestLogger) record(level, msg string) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.entries = append(l.sink.entries, LogEntry{
		Level:   level,
		Message: strings.TrimSuffix(msg, "\n"),
		Fields:  l.fields,
	})
}

// Debug implements log.Logger
func (l *TestLogger) Debug(args ...any) {
	l.record("DEBUG", fmt.Sprint(args...))
}

// Debugf implements log.Logger
func (l *TestLogger) Debugf(format string, args ...any) {
	l.record("DEBUG", fmt.Sprintf(format, args...))
}

// Debugln implements log.Logger
func (l *TestLogger) Debugln(args ...any) {
	l.record("DEBUG", fmt.Sprintln(args...))
}

// Info implements log.Logger
func (l *TestLogger) Info(args ...any) {
	l.record("INFO", fmt.Sprint(args...))
}

// Infof implements log.Logger
func (l *TestLogger) Infof(format string, args ...any) {
	l.record("INFO", fmt.Sprintf(format, args...))
}

// Infoln implements log.Logger
func (l *TestLogger) Infoln(args ...any) {
	l.record("INFO", fmt.Sprintln(args...))
}

// Warn implements log.Logger
func (l *TestLogger) Warn(args ...any) {
	l.record("WARN", fmt.Sprint(args...))
}

// Warnf implements log.Logger
func (l *TestLogger) Warnf(format string, args ...any) {
	l.record("WARN", fmt.Sprintf(format, args...))
}

// Warnln implements log.Logger
func (l *TestLogger) Warnln(args ...any) {
	l.record("WARN", fmt.Sprintln(args...))
}

// Error implements log.Logger
func (l *TestLogger) Error(args ...any) {
	l.record("ERROR", fmt.Sprint(args...))
}

// Errorf implements log.Logger
func (l *TestLogger) Errorf(format string, args ...any) {
	l.record("ERROR", fmt.Sprintf(format, args...))
}

// Errorln implements log.Logger
func (l *TestLogger) Errorln(args ...any) {
	l.record("ERROR", fmt.Sprintln(args...))
}

// Fatal records the entry without exiting.
func (l *TestLogger) Fatal(args ...any) {
	l.record("FATAL", fmt.Sprint(args...))
}

// Fatalf implements log.Logger
func (l *TestLogger) Fatalf(format string, args ...any) {
	l.record("FATAL", fmt.Sprintf(format, args...))
}

// Fatalln implements log.Logger
func (l *TestLogger) Fatalln(args ...any) {
	l.record("FATAL", fmt.Sprintln(args...))
}

// WithFields implements log.Logger
func (l *TestLogger) WithFields(fields ...any) log.Logger {
	merged := append(append([]any{}, l.fields...), fields...)
	return &TestLogger{sink: l.sink, fields: merged}
}

// WithDefaultMessageTemplate implements log.Logger
func (l *TestLogger) WithDefaultMessageTemplate(string) log.Logger {
	return l
}

// Sync implements log.Logger
func (l *TestLogger) Sync() error {
	return nil
}

// GetEntries returns a copy of all log entries
func (l *TestLogger) GetEntries() []LogEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	return append([]LogEntry(nil), l.sink.entries...)
}

// Count returns the number of log entries for the given level
func (l *TestLogger) Count(level string) int {
	count := 0

	for _, entry := range l.GetEntries() {
		if entry.Level == level {
			count++
		}
	}

	return count
}

// Contains returns true if an entry at level contains all the given strings
func (l *TestLogger) Contains(level string, substrings ...string) bool {
	for _, entry := range l.GetEntries() {
		if entry.Level != level {
			continue
		}

		allFound := true

		for _, s := range substrings {
			if !strings.Contains(entry.Message, s) {
				allFound = false
				break
			}
		}

		if allFound {
			return true
		}
	}

	return false
}
