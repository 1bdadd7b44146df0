// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log exports logging primitives that log to stderr
// through a structured logrus logger.
package log // import "cvs.io/log"

// We call this log instead of logging for two reasons:
// 1) It's shorter to type;
// 2) it mimics Go's log package and can be used as a drop-in replacement for it.

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for logging messages.
type Logger interface {
	// Printf writes a formated message to the log.
	Printf(format string, v ...interface{})

	// Print writes a message to the log.
	Print(v ...interface{})

	// Println writes a line to the log.
	Println(v ...interface{})

	// Fatal writes a message to the log and aborts.
	Fatal(v ...interface{})

	// Fatalf writes a formated message to the log and aborts.
	Fatalf(format string, v ...interface{})
}

// Level represents the level of logging.
type Level int

// Different levels of logging.
const (
	DebugLevel Level = iota
	InfoLevel
	ErrorLevel
	DisabledLevel
)

// The set of default loggers for each log level.
var (
	Debug = &logger{DebugLevel}
	Info  = &logger{InfoLevel}
	Error = &logger{ErrorLevel}
)

type globalState struct {
	currentLevel  Level
	defaultLogger Logger
	sink          *logrus.Logger
}

var (
	mu    sync.RWMutex
	state = globalState{
		currentLevel: InfoLevel,
	}
)

func init() {
	state.sink = newSink(os.Stderr)
	state.defaultLogger = state.sink
}

// newSink returns a logrus logger that prints every entry it is handed;
// level filtering happens in this package, not in logrus.
func newSink(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.Out = w
	l.Level = logrus.DebugLevel
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
		DisableColors:   true,
	}
	return l
}

func globals() globalState {
	mu.RLock()
	defer mu.RUnlock()
	return state
}

type logger struct {
	level Level
}

var _ Logger = (*logger)(nil)

// entry returns the logger to write to at level l, or nil if
// messages at that level are being discarded.
func (l *logger) entry() Logger {
	g := globals()
	if l.level < g.currentLevel {
		return nil // Don't log at lower levels.
	}
	if lr, ok := g.defaultLogger.(*logrus.Logger); ok {
		return &leveled{lr, l.logrusLevel()}
	}
	return g.defaultLogger
}

func (l *logger) logrusLevel() logrus.Level {
	switch l.level {
	case DebugLevel:
		return logrus.DebugLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

// leveled writes to a logrus logger at a fixed severity.
type leveled struct {
	l   *logrus.Logger
	lvl logrus.Level
}

func (s *leveled) Printf(format string, v ...interface{}) { s.l.Logf(s.lvl, format, v...) }
func (s *leveled) Print(v ...interface{})                 { s.l.Log(s.lvl, v...) }
func (s *leveled) Println(v ...interface{})               { s.l.Logln(s.lvl, v...) }
func (s *leveled) Fatal(v ...interface{})                 { s.l.Fatal(v...) }
func (s *leveled) Fatalf(format string, v ...interface{}) { s.l.Fatalf(format, v...) }

// Printf writes a formatted message to the log.
func (l *logger) Printf(format string, v ...interface{}) {
	if e := l.entry(); e != nil {
		e.Printf(format, v...)
	}
}

// Print writes a message to the log.
func (l *logger) Print(v ...interface{}) {
	if e := l.entry(); e != nil {
		e.Print(v...)
	}
}

// Println writes a line to the log.
func (l *logger) Println(v ...interface{}) {
	if e := l.entry(); e != nil {
		e.Println(v...)
	}
}

// Fatal writes a message to the log and aborts, regardless of the current log level.
func (l *logger) Fatal(v ...interface{}) {
	globals().defaultLogger.Fatal(v...)
}

// Fatalf writes a formatted message to the log and aborts, regardless of the
// current log level.
func (l *logger) Fatalf(format string, v ...interface{}) {
	globals().defaultLogger.Fatalf(format, v...)
}

// String returns the name of the logger.
func (l *logger) String() string {
	return l.level.String()
}

func (l Level) String() string {
	switch l {
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	case ErrorLevel:
		return "error"
	case DisabledLevel:
		return "disabled"
	}
	return "unknown"
}

func toLevel(level string) (Level, error) {
	switch level {
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "error":
		return ErrorLevel, nil
	case "disabled":
		return DisabledLevel, nil
	}
	return DisabledLevel, fmt.Errorf("invalid log level %q", level)
}

// GetLevel returns the current logging level.
func GetLevel() string {
	return globals().currentLevel.String()
}

// SetLevel sets the current level of logging.
func SetLevel(level string) error {
	l, err := toLevel(level)
	if err != nil {
		return err
	}
	mu.Lock()
	state.currentLevel = l
	mu.Unlock()
	return nil
}

// At returns whether the level will be logged currently.
func At(level string) bool {
	l, err := toLevel(level)
	if err != nil {
		return false
	}
	return globals().currentLevel <= l
}

// SetOutput sets the default loggers to write to w.
// If w is nil, the default loggers are disabled.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	state.sink = newSink(w)
	state.defaultLogger = state.sink
}

// Printf writes a formatted message to the log.
func Printf(format string, v ...interface{}) {
	Info.Printf(format, v...)
}

// Print writes a message to the log.
func Print(v ...interface{}) {
	Info.Print(v...)
}

// Println writes a line to the log.
func Println(v ...interface{}) {
	Info.Println(v...)
}

// Fatal writes a message to the log and aborts.
func Fatal(v ...interface{}) {
	Info.Fatal(v...)
}

// Fatalf writes a formatted message to the log and aborts.
func Fatalf(format string, v ...interface{}) {
	Info.Fatalf(format, v...)
}

// Flush flushes any buffered log output. It is registered as the last
// shutdown handler so that nothing logged during shutdown is lost.
func Flush() {
	g := globals()
	if f, ok := g.sink.Out.(interface{ Sync() error }); ok {
		f.Sync()
	}
}
