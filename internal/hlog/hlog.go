// Package hlog is a small leveled, color-prefixed logger used throughout
// helix. It has no third-party dependency: every sink is an io.Writer.
package hlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Level is a logging severity. Levels increase in severity; NoPrint
// disables output entirely.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

var levelName = []string{"Trace", "Debug", "Info", "Warn", "Error"}

var (
	magenta = string([]byte{27, 91, 57, 53, 109})
	green   = string([]byte{27, 91, 57, 50, 109})
	blue    = string([]byte{27, 91, 57, 52, 109})
	yellow  = string([]byte{27, 91, 57, 51, 109})
	red     = string([]byte{27, 91, 57, 49, 109})
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{magenta, green, blue, yellow, red}
)

// ParseLevel converts a name such as "info" or "Warn" to a Level. Unknown
// names yield LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "trace", "Trace", "TRACE":
		return LevelTrace
	case "debug", "Debug", "DEBUG":
		return LevelDebug
	case "warn", "Warn", "WARN":
		return LevelWarn
	case "error", "Error", "ERROR":
		return LevelError
	case "none", "off", "NoPrint":
		return LevelNoPrint
	default:
		return LevelInfo
	}
}

// Logger writes leveled lines to an io.Writer, prefixed with time, a
// color-coded level name, and the file:line of the caller.
type Logger struct {
	mu        sync.Mutex
	name      string
	out       io.Writer
	level     Level
	callDepth int
}

// Default is the package-wide logger used by helix's components unless a
// caller constructs its own. HELIX_LOG_LEVEL sets its initial level.
var Default = New("helix", os.Stdout)

func init() {
	if v := os.Getenv("HELIX_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && Level(n) <= LevelNoPrint {
			Default.SetLevel(Level(n))
		} else {
			Default.SetLevel(ParseLevel(v))
		}
	}
}

// New constructs a Logger writing to out, defaulting to LevelInfo.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{name: name, out: out, level: LevelInfo, callDepth: 4}
}

// SetLevel changes the minimum level this logger emits.
func (l *Logger) SetLevel(lv Level) {
	l.mu.Lock()
	l.level = lv
	l.mu.Unlock()
}

func (l *Logger) enabled(lv Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level <= lv
}

func (l *Logger) prefix(lv Level) string {
	var buf bytes.Buffer
	buf.WriteString(colors[lv])
	buf.WriteString(levelName[lv])
	buf.WriteByte(' ')
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	buf.WriteByte(' ')
	buf.WriteString(l.location())
	buf.WriteByte(' ')
	buf.WriteString(l.name)
	buf.WriteByte(' ')
	return buf.String()
}

func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		return "???"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func (l *Logger) logf(lv Level, format string, a ...any) {
	if !l.enabled(lv) {
		return
	}
	fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...)
}

func (l *Logger) Tracef(format string, a ...any) { l.logf(LevelTrace, format, a...) }
func (l *Logger) Debugf(format string, a ...any)  { l.logf(LevelDebug, format, a...) }
func (l *Logger) Infof(format string, a ...any)   { l.logf(LevelInfo, format, a...) }
func (l *Logger) Warnf(format string, a ...any)   { l.logf(LevelWarn, format, a...) }
func (l *Logger) Errorf(format string, a ...any)  { l.logf(LevelError, format, a...) }
