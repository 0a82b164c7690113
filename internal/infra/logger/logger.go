package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// panelSize bounds the in-memory history shown by `GET /api/logs`.
const panelSize = 500

// Entry is one line of the log panel.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

type Logger struct {
	fileLogger    *log.Logger
	stdout        io.Writer
	level         Level
	includeStdout bool

	mu    sync.Mutex
	panel []Entry
	next  int
	full  bool
}

// New opens (or creates) filePath for appending. An empty path logs to the
// panel and stdout only.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	var out io.Writer = io.Discard
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = f
	}

	return &Logger{
		fileLogger:    log.New(out, "", 0),
		stdout:        os.Stdout,
		level:         level,
		includeStdout: includeStdout,
		panel:         make([]Entry, panelSize),
	}, nil
}

// Discard returns a logger that only records to the panel. Used by tests.
func Discard() *Logger {
	return &Logger{
		fileLogger: log.New(io.Discard, "", 0),
		stdout:     io.Discard,
		level:      LevelDebug,
		panel:      make([]Entry, panelSize),
	}
}

func (l *Logger) log(lvl Level, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}

	now := time.Now()
	msg := fmt.Sprintf(format, v...)
	fullMsg := fmt.Sprintf("%s [%s] %s", now.Format("2006-01-02 15:04:05"), lvl, msg)

	l.fileLogger.Println(fullMsg)
	l.record(Entry{Time: now, Level: lvl.String(), Message: msg})

	// Debug stays out of stdout so CLI progress lines remain readable
	if l.includeStdout && lvl >= LevelInfo {
		fmt.Fprintln(l.stdout, fullMsg)
	}
}

func (l *Logger) record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panel[l.next] = e
	l.next = (l.next + 1) % len(l.panel)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to n panel entries, oldest first.
func (l *Logger) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ordered []Entry
	if l.full {
		ordered = append(ordered, l.panel[l.next:]...)
	}
	ordered = append(ordered, l.panel[:l.next]...)

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, f, v...); os.Exit(1) }

// Write lets a standard library *log.Logger (net/http's ErrorLog) feed the
// app log. Lines land at warn level.
func (l *Logger) Write(p []byte) (n int, err error) {
	// Libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Warn("%s", msg)
	}
	return len(p), nil
}
