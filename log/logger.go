// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package log implements a leveled, contextual logger for the ETP core
// components. It is deliberately small: one colorized terminal handler,
// one optional rotating file handler, and a Logger interface that every
// component depends on instead of calling a package-level function
// directly, so tests can inject a silent or buffering logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Lvl is a logging priority, lower is more urgent.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger writes leveled, contextual log records. New derives a child
// logger that prepends extra key/value context to every record.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
	h   *handlerState
}

// handlerState is shared (via pointer) by a logger and all of its
// descendants so that SetLevel/SetOutput on the root affects everyone.
type handlerState struct {
	mu     sync.Mutex
	level  Lvl
	w      io.Writer
	color  bool
	fileW  io.Writer // optional rotating file sink, written to in addition to w
}

var root = &logger{h: &handlerState{
	level: LvlInfo,
	w:     defaultWriter(),
	color: defaultColor(),
}}

func defaultWriter() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return colorable.NewColorableStderr()
	}
	return os.Stderr
}

func defaultColor() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

// Root returns the root logger. Every logger created with New() not
// derived from another logger descends from it.
func Root() Logger { return root }

// New creates a logger descending from Root with the given context.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

// SetLevel changes the minimum level that reaches the handler.
func SetLevel(l Lvl) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.level = l
}

// SetOutput redirects the terminal sink, disabling color detection (the
// caller is responsible for wrapping w in a colorable writer if desired).
func SetOutput(w io.Writer) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.w = w
	root.h.color = false
}

// EnableFileSink adds a rotating log file alongside the terminal sink.
func EnableFileSink(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.fileW = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{h: l.h}
	child.ctx = append(append([]interface{}{}, l.ctx...), ctx...)
	return child
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }

// Crit logs at the most urgent level, annotated with the caller's call
// stack, then terminates the process — reserved for unrecoverable
// conditions.
func (l *logger) Crit(msg string, ctx ...interface{}) {
	ctx = append(ctx, "stack", stack.Trace().TrimRuntime())
	l.write(LvlCrit, msg, ctx)
	os.Exit(1)
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	if lvl > l.h.level {
		return
	}
	line := format(lvl, msg, append(append([]interface{}{}, l.ctx...), ctx...), l.h.color)
	io.WriteString(l.h.w, line)
	if l.h.fileW != nil {
		io.WriteString(l.h.fileW, format(lvl, msg, append(append([]interface{}{}, l.ctx...), ctx...), false))
	}
}

func format(lvl Lvl, msg string, ctx []interface{}, useColor bool) string {
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000Z0700")
	lvlStr := fmt.Sprintf("%-5s", lvl.String())
	if useColor {
		lvlStr = lvlColor[lvl].Sprint(lvlStr)
	}
	fmt.Fprintf(&b, "%s [%s] %s", ts, lvlStr, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", ctx[i], ctx[i+1])
	}
	b.WriteByte('\n')
	return b.String()
}
