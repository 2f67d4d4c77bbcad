// Package logger provides leveled logging for the print agent: console
// output, an append-only log file with size-based rotation, and an
// in-memory ring buffer the web UI reads from.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
)

var levelNames = map[Level]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
}

const logFileName = "agent.log"

// Entry is one recorded log line.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]interface{}
}

// Logger writes leveled entries to console and file, keeping the most
// recent entries in memory. Safe for concurrent use.
type Logger struct {
	mu            sync.Mutex
	level         Level
	logDir        string
	file          *os.File
	filePath      string
	buffer        []Entry
	maxBufferSize int
	maxFileBytes  int64
	console       bool
}

// New creates a logger writing to logDir. An empty logDir disables the
// file output.
func New(level Level, logDir string, maxBufferSize int) *Logger {
	return &Logger{
		level:         level,
		logDir:        logDir,
		buffer:        make([]Entry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		maxFileBytes:  10 * 1024 * 1024,
		console:       true,
	}
}

// SetConsoleOutput enables or disables stdout output.
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = enabled
}

// SetLevel changes the minimum level that gets recorded.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Error logs at ERROR level. Context is alternating key, value pairs.
func (l *Logger) Error(msg string, context ...interface{}) {
	l.log(ERROR, msg, context...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, context ...interface{}) {
	l.log(WARN, msg, context...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, context ...interface{}) {
	l.log(INFO, msg, context...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, context ...interface{}) {
	l.log(DEBUG, msg, context...)
}

func (l *Logger) log(level Level, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ctx := make(map[string]interface{})
	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Context:   ctx,
	}

	if len(l.buffer) >= l.maxBufferSize && l.maxBufferSize > 0 {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, entry)

	line := formatEntry(entry)
	if l.console {
		fmt.Println(line)
	}
	l.writeToFile(line)
}

func (l *Logger) writeToFile(line string) {
	if l.logDir == "" {
		return
	}
	if l.file == nil {
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return
		}
		path := filepath.Join(l.logDir, logFileName)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		l.file = f
		l.filePath = path
	}

	l.file.WriteString(line + "\n")

	if stat, err := l.file.Stat(); err == nil && stat.Size() >= l.maxFileBytes {
		l.rotate()
	}
}

// rotate renames the current file with a timestamp suffix and starts fresh.
func (l *Logger) rotate() {
	l.file.Close()
	l.file = nil
	backup := filepath.Join(l.logDir, fmt.Sprintf("agent_%s.log", time.Now().Format("20060102_150405")))
	os.Rename(l.filePath, backup)
}

func formatEntry(entry Entry) string {
	line := fmt.Sprintf("%s [%s] %s",
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		levelNames[entry.Level],
		entry.Message,
	)
	for k, v := range entry.Context {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return line
}

// Buffer returns a copy of the recent entries, oldest first.
func (l *Logger) Buffer() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// LevelFromString maps a config string to a Level, defaulting to INFO.
func LevelFromString(s string) Level {
	switch s {
	case "error":
		return ERROR
	case "warn":
		return WARN
	case "debug":
		return DEBUG
	default:
		return INFO
	}
}

// String returns the level name.
func (lv Level) String() string {
	return levelNames[lv]
}
