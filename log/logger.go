// Package log provides the category-scoped logger used across the runtime.
package log

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger decorates a logrus logger with a category per line and the time
// elapsed since the previous line. A nil *Logger discards everything.
type Logger struct {
	Log            *logrus.Logger
	fields         logrus.Fields
	mu             *sync.Mutex
	lastLogCall    *int64
	categoryFilter *regexp.Regexp
}

// NewNullLogger will create a logger where log lines will
// be discarded and not logged anywhere.
func NewNullLogger() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return New(log, nil)
}

// New creates a new logger. categoryFilter, when set, keeps only the
// categories it matches.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	var last int64
	return &Logger{
		Log:            logger,
		mu:             &sync.Mutex{},
		lastLogCall:    &last,
		categoryFilter: categoryFilter,
	}
}

// With returns a logger that adds key=value to every entry. It shares the
// output, level and elapsed-time bookkeeping with l.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value

	cp := *l
	cp.fields = fields
	return &cp
}

func (l *Logger) Tracef(category string, msg string, args ...any) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

func (l *Logger) Infof(category string, msg string, args ...any) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...any) {
	if l == nil || l.Log == nil {
		return
	}
	// don't log if the current log level isn't in the required level.
	if l.Log.GetLevel() < level {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	l.mu.Lock()
	now := time.Now().UnixNano() / int64(time.Millisecond)
	elapsed := now - *l.lastLogCall
	if *l.lastLogCall == 0 {
		elapsed = 0
	}
	*l.lastLogCall = now
	l.mu.Unlock()

	entry := l.Log.WithFields(l.fields).WithFields(logrus.Fields{
		"category": category,
		"elapsed":  fmt.Sprintf("%d ms", elapsed),
	})
	entry.Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string.
// Accepted values: panic, fatal, error, warn, info, debug, trace.
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Log.SetLevel(pl)
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l != nil && l.Log.GetLevel() >= logrus.DebugLevel
}
