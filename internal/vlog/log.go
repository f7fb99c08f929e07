// Package vlog is the structured logger used across the storage core.
//
// It follows the key-value logger shape go-ethereum's own log package
// uses: a Logger carries a fixed context (established once with New),
// and each call site adds call-specific key-value pairs on top of it.
package vlog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is a context-carrying leveled logger.
type Logger struct {
	ctx []interface{}
	std *log.Logger
}

var root = &Logger{std: log.New(os.Stderr, "", log.LstdFlags)}

// New returns a Logger with ctx appended as permanent key-value context,
// e.g. vlog.New("zone", zoneID, "component", "journal").
func New(ctx ...interface{}) *Logger {
	return &Logger{ctx: append(append([]interface{}{}, root.ctx...), ctx...), std: root.std}
}

func (l *Logger) with(extra []interface{}) []interface{} {
	return append(append([]interface{}{}, l.ctx...), extra...)
}

func (l *Logger) log(level string, msg string, ctx []interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	all := l.with(ctx)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	l.std.Println(b.String())
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log("TRACE", msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log("DEBUG", msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log("INFO", msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log("WARN", msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log("ERROR", msg, ctx) }

// Crit logs at the highest severity. Callers entering read-only mode
// use this so the transition is never silent.
func (l *Logger) Crit(msg string, ctx ...interface{}) { l.log("CRIT", msg, ctx) }

// Root returns the package-level root Logger whose context and output
// New copies, matching the teacher's `log.Root()` call sites.
func Root() *Logger { return root }
