// Package logging provides structured JSON logging with levels and a
// queryable in-memory buffer of recent entries.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel maps a config or env string to a Level.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, true
	case LevelInfo, "":
		return LevelInfo, true
	case LevelWarn, "warning":
		return LevelWarn, true
	case LevelError:
		return LevelError, true
	}
	return LevelInfo, false
}

func levelPriority(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Entry is a single log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes JSON lines and keeps the most recent entries for querying.
type Logger struct {
	mu         sync.RWMutex
	output     io.Writer
	level      Level
	component  string
	entries    []Entry
	maxEntries int
	counts     map[Level]int64
}

// Config holds logger configuration
type Config struct {
	Output     io.Writer // default: os.Stderr
	Level      Level     // default: info
	Component  string
	MaxEntries int // default: 1000
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		output:     cfg.Output,
		level:      cfg.Level,
		component:  cfg.Component,
		entries:    make([]Entry, 0, cfg.MaxEntries),
		maxEntries: cfg.MaxEntries,
		counts:     make(map[Level]int64),
	}
}

// Discard returns a logger that drops everything it is given.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError, MaxEntries: 1})
}

// SetLevel changes the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return levelPriority(level) >= levelPriority(l.level)
}

func (l *Logger) emit(e Entry) {
	if !l.enabled(e.Level) {
		return
	}
	e.Timestamp = time.Now().UTC()
	e.Component = l.component

	data, err := json.Marshal(e)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[e.Level]++
	if len(l.entries) >= l.maxEntries {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)

	if err != nil {
		fmt.Fprintf(l.output, `{"level":"error","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	l.output.Write(append(data, '\n'))
}

func firstFields(fields []map[string]any) map[string]any {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.emit(Entry{Level: LevelDebug, Message: msg, Fields: firstFields(fields)})
}

func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.emit(Entry{Level: LevelInfo, Message: msg, Fields: firstFields(fields)})
}

func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.emit(Entry{Level: LevelWarn, Message: msg, Fields: firstFields(fields)})
}

func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.emit(Entry{Level: LevelError, Message: msg, Fields: firstFields(fields)})
}

// WithCall returns a logger that tags every entry with a bridge call.
func (l *Logger) WithCall(callID, operation string) *CallLogger {
	return &CallLogger{parent: l, callID: callID, operation: operation}
}

// CallLogger is scoped to one bridge call.
type CallLogger struct {
	parent    *Logger
	callID    string
	operation string
}

// CallID returns the call this logger is scoped to.
func (c *CallLogger) CallID() string { return c.callID }

func (c *CallLogger) log(level Level, msg string, fields []map[string]any) {
	c.parent.emit(Entry{
		Level:     level,
		Message:   msg,
		CallID:    c.callID,
		Operation: c.operation,
		Fields:    firstFields(fields),
	})
}

func (c *CallLogger) Debug(msg string, fields ...map[string]any) { c.log(LevelDebug, msg, fields) }
func (c *CallLogger) Info(msg string, fields ...map[string]any)  { c.log(LevelInfo, msg, fields) }
func (c *CallLogger) Warn(msg string, fields ...map[string]any)  { c.log(LevelWarn, msg, fields) }
func (c *CallLogger) Error(msg string, fields ...map[string]any) { c.log(LevelError, msg, fields) }

// Query filters stored entries. Zero values match everything.
type Query struct {
	Level     Level
	CallID    string
	Operation string
	Since     time.Time
	Limit     int // keeps the most recent entries
}

// QueryResult contains filtered log entries and metadata
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"` // matches before limit
	Counts  Stats   `json:"counts"`
}

// Stats counts entries by level since the last Clear.
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

func (q Query) matches(e Entry) bool {
	if q.Level != "" && levelPriority(e.Level) < levelPriority(q.Level) {
		return false
	}
	if q.CallID != "" && e.CallID != q.CallID {
		return false
	}
	if q.Operation != "" && e.Operation != q.Operation {
		return false
	}
	return q.Since.IsZero() || !e.Timestamp.Before(q.Since)
}

// Query returns stored entries matching q, oldest first.
func (l *Logger) Query(q Query) QueryResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := []Entry{}
	for _, e := range l.entries {
		if q.matches(e) {
			filtered = append(filtered, e)
		}
	}
	total := len(filtered)
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[len(filtered)-q.Limit:]
	}
	return QueryResult{Entries: filtered, Total: total, Counts: l.statsLocked()}
}

// Stats returns current log statistics without entries
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statsLocked()
}

func (l *Logger) statsLocked() Stats {
	s := Stats{
		Debug: l.counts[LevelDebug],
		Info:  l.counts[LevelInfo],
		Warn:  l.counts[LevelWarn],
		Error: l.counts[LevelError],
	}
	s.Total = s.Debug + s.Info + s.Warn + s.Error
	return s
}

// Clear removes all stored entries and resets counts
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, 0, l.maxEntries)
	l.counts = make(map[Level]int64)
}
