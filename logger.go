package macroengine

import (
	"fmt"
	"io"
	"os"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota // Development info (requires enabled + category)
	LevelWarn                  // Warnings (requires enabled or category)
	LevelError                 // Runtime errors (always shown)
)

// LogCategory represents the subsystem generating the message.
type LogCategory string

const (
	CatNone     LogCategory = ""         // Uncategorized
	CatParse    LogCategory = "parse"    // Source parsing
	CatTrigger  LogCategory = "trigger"  // Press/release/hold propagation
	CatStep     LogCategory = "step"     // Step execution (k, wait, mouse, ...)
	CatVariable LogCategory = "variable" // Variable get/set
	CatRuntime  LogCategory = "runtime"  // Top-level macro lifecycle
)

// Logger handles categorized logging for the macro engine.
type Logger struct {
	enabled           bool
	enabledCategories map[LogCategory]bool
	out               io.Writer
	errOut            io.Writer
}

// NewLogger creates a new logger. enabled turns on uncategorized debug
// output; individual categories are opted into separately.
func NewLogger(enabled bool) *Logger {
	return &Logger{
		enabled:           enabled,
		enabledCategories: make(map[LogCategory]bool),
		out:               os.Stdout,
		errOut:            os.Stderr,
	}
}

// SetEnabled enables or disables uncategorized debug logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// EnableCategory enables debug logging for a specific category.
func (l *Logger) EnableCategory(cat LogCategory) {
	l.enabledCategories[cat] = true
}

// DisableCategory disables debug logging for a specific category.
func (l *Logger) DisableCategory(cat LogCategory) {
	delete(l.enabledCategories, cat)
}

// IsCategoryEnabled reports whether a category is enabled.
func (l *Logger) IsCategoryEnabled(cat LogCategory) bool {
	return l.enabledCategories[cat]
}

func (l *Logger) shouldLog(level LogLevel, cat LogCategory) bool {
	switch level {
	case LevelError:
		return true
	case LevelWarn:
		return l.enabled || l.enabledCategories[cat]
	case LevelDebug:
		return l.enabled && (cat == CatNone || l.enabledCategories[cat])
	default:
		return false
	}
}

// Log is the unified logging method.
func (l *Logger) Log(level LogLevel, cat LogCategory, message string) {
	if !l.shouldLog(level, cat) {
		return
	}

	var prefix string
	switch level {
	case LevelDebug:
		if cat != CatNone {
			prefix = fmt.Sprintf("[DEBUG:%s]", cat)
		} else {
			prefix = "[DEBUG]"
		}
	case LevelWarn:
		prefix = "[WARN]"
	case LevelError:
		prefix = "[ERROR]"
	}

	output := fmt.Sprintf("%s %s", prefix, message)

	if level == LevelDebug {
		_, _ = fmt.Fprintln(l.out, output)
	} else {
		_, _ = fmt.Fprintln(l.errOut, output)
	}
}

// Debug logs an uncategorized debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.Log(LevelDebug, CatNone, fmt.Sprintf(format, args...))
}

// DebugCat logs a categorized debug message.
func (l *Logger) DebugCat(cat LogCategory, format string, args ...interface{}) {
	l.Log(LevelDebug, cat, fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.Log(LevelWarn, CatNone, fmt.Sprintf(format, args...))
}

// WarnCat logs a categorized warning for a swallowed runtime condition
// (already-running, already-holding, and the like): these are not Go
// errors, they are warnings the run swallows and continues past.
func (l *Logger) WarnCat(cat LogCategory, format string, args ...interface{}) {
	l.Log(LevelWarn, cat, fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LevelError, CatNone, fmt.Sprintf(format, args...))
}
