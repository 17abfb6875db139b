// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

// Package logging is the leveled logger shared by the merge engine, the
// key-value scan client and the command line tools.
package logging

import "io"
import "os"
import "fmt"
import "strings"
import "sync/atomic"
import "time"
import "runtime/debug"
import l "log"

// Log levels
type LogLevel int32

const (
	Silent LogLevel = iota
	Fatal
	Error
	Warn
	Info
	Verbose
	Timing
	Debug
	Trace
)

// Logger interface
type Logger interface {
	// Warnings, logged by default.
	Warnf(format string, v ...interface{})
	// Errors, logged by default.
	Errorf(format string, v ...interface{})
	// Fatal errors. Will not terminate execution.
	Fatalf(format string, v ...interface{})
	// Informational messages.
	Infof(format string, v ...interface{})
	// Per request progress, off by default.
	Verbosef(format string, v ...interface{})
	// Timing utility
	Timer(format string, v ...interface{}) Ender
	// Debugging messages
	Debugf(format string, v ...interface{})
	// Program execution
	Tracef(format string, v ...interface{})
	// Call and print the stringer if debugging enabled
	LazyDebug(fn func() string)
	// Call and print the stringer if tracing enabled
	LazyTrace(fn func() string)
}

// Timer interface
type Ender interface {
	// Stop and log timing
	End()
}

func (t LogLevel) String() string {
	switch t {
	case Silent:
		return "Silent"
	case Fatal:
		return "Fatal"
	case Error:
		return "Error"
	case Warn:
		return "Warn"
	case Info:
		return "Info"
	case Verbose:
		return "Verbose"
	case Timing:
		return "Timing"
	case Debug:
		return "Debug"
	case Trace:
		return "Trace"
	default:
		return "Info"
	}
}

// Level parses a level name, case-insensitive. Unknown names map to Info.
func Level(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "SILENT":
		return Silent
	case "FATAL":
		return Fatal
	case "ERROR":
		return Error
	case "WARN":
		return Warn
	case "INFO":
		return Info
	case "VERBOSE":
		return Verbose
	case "TIMING":
		return Timing
	case "DEBUG":
		return Debug
	case "TRACE":
		return Trace
	default:
		return Info
	}
}

type destination struct {
	level  int32
	target atomic.Pointer[l.Logger]
}

type stopClock struct {
	comment string
	start   time.Time
	log     Logger
}

func newDestination(w io.Writer) *destination {
	dest := &destination{level: int32(Info)}
	dest.target.Store(l.New(w, "", l.Lmicroseconds))
	return dest
}

func (log *destination) Warnf(format string, v ...interface{}) {
	log.printf(Warn, "", format, v...)
}

// Errors that caused problems in execution logic.
func (log *destination) Errorf(format string, v ...interface{}) {
	log.printf(Error, "", format, v...)
}

// Fatal messages are to be logged prior to exiting due to errors.
func (log *destination) Fatalf(format string, v ...interface{}) {
	log.printf(Fatal, "", format, v...)
}

// Info messages are those that are logged but not expected to be read.
func (log *destination) Infof(format string, v ...interface{}) {
	log.printf(Info, "", format, v...)
}

func (log *destination) Verbosef(format string, v ...interface{}) {
	log.printf(Verbose, "", format, v...)
}

// Function timing. Use as:
//
//	defer Timer("merge requestId %v", id).End()
func (log *destination) Timer(format string, v ...interface{}) Ender {
	return log.timer(log, format, v...)
}

// Debug messages to help analyze problem. Default off.
func (log *destination) Debugf(format string, v ...interface{}) {
	log.printf(Debug, "", format, v...)
}

// Execution trace showing the program flow. Default off.
func (log *destination) Tracef(format string, v ...interface{}) {
	log.printf(Trace, "", format, v...)
}

func (log *destination) LazyDebug(fn func() string) {
	if log.isEnabled(Debug) {
		log.printf(Debug, "", "%s", fn())
	}
}

func (log *destination) LazyTrace(fn func() string) {
	if log.isEnabled(Trace) {
		log.printf(Trace, "", "%s", fn())
	}
}

func (log *destination) SetLogLevel(to LogLevel) {
	atomic.StoreInt32(&log.level, int32(to))
}

func (log *destination) isEnabled(at LogLevel) bool {
	return LogLevel(atomic.LoadInt32(&log.level)) >= at
}

func (log *destination) printf(at LogLevel, prefix string, format string, v ...interface{}) {
	if log.isEnabled(at) {
		log.target.Load().Printf("["+at.String()+"] "+prefix+format, v...)
	}
}

func (log *destination) timer(owner Logger, format string, v ...interface{}) Ender {
	if !log.isEnabled(Timing) {
		return emptyclock
	}
	comment := fmt.Sprintf(format, v...)
	return &stopClock{comment: comment, start: time.Now(), log: owner}
}

// Stop the running timer and print timing
func (watch *stopClock) End() {
	elapsed := time.Since(watch.start).Nanoseconds()
	switch log := watch.log.(type) {
	case *destination:
		log.printf(Timing, "", "%.1f μs - %s", float64(elapsed)/1000, watch.comment)
	case *PrefixLogger:
		log.dest.printf(Timing, log.prefix, "%.1f μs - %s", float64(elapsed)/1000, watch.comment)
	}
}

// No op clock
var emptyclock = &emptyClock{}

type emptyClock struct{}

func (_ *emptyClock) End() {
}

//
// PrefixLogger
//

// PrefixLogger tags every line with a fixed prefix, typically a request id.
// It shares the level and writer of the system logger.
type PrefixLogger struct {
	prefix string
	dest   *destination
}

// WithPrefix returns a logger that writes "<prefix> " ahead of every message.
func WithPrefix(prefix string) *PrefixLogger {
	return &PrefixLogger{prefix: prefix + " ", dest: SystemLogger}
}

func (p *PrefixLogger) Warnf(format string, v ...interface{}) {
	p.dest.printf(Warn, p.prefix, format, v...)
}

func (p *PrefixLogger) Errorf(format string, v ...interface{}) {
	p.dest.printf(Error, p.prefix, format, v...)
}

func (p *PrefixLogger) Fatalf(format string, v ...interface{}) {
	p.dest.printf(Fatal, p.prefix, format, v...)
}

func (p *PrefixLogger) Infof(format string, v ...interface{}) {
	p.dest.printf(Info, p.prefix, format, v...)
}

func (p *PrefixLogger) Verbosef(format string, v ...interface{}) {
	p.dest.printf(Verbose, p.prefix, format, v...)
}

func (p *PrefixLogger) Timer(format string, v ...interface{}) Ender {
	return p.dest.timer(p, format, v...)
}

func (p *PrefixLogger) Debugf(format string, v ...interface{}) {
	p.dest.printf(Debug, p.prefix, format, v...)
}

func (p *PrefixLogger) Tracef(format string, v ...interface{}) {
	p.dest.printf(Trace, p.prefix, format, v...)
}

func (p *PrefixLogger) LazyDebug(fn func() string) {
	if p.dest.isEnabled(Debug) {
		p.dest.printf(Debug, p.prefix, "%s", fn())
	}
}

func (p *PrefixLogger) LazyTrace(fn func() string) {
	if p.dest.isEnabled(Trace) {
		p.dest.printf(Trace, p.prefix, "%s", fn())
	}
}

// The default logger
var SystemLogger *destination

func init() {
	SystemLogger = newDestination(os.Stdout)
}

// SetLogWriter redirects the default destination. The level is kept.
func SetLogWriter(w io.Writer) {
	SystemLogger.target.Store(l.New(w, "", l.Lmicroseconds))
}

//
// A set of convenience methods to log to default logger
// See correspond methods on destination for details
//
func Warnf(format string, v ...interface{}) {
	SystemLogger.printf(Warn, "", format, v...)
}

// Errorf to log message and warning messages will be logged.
func Errorf(format string, v ...interface{}) {
	SystemLogger.printf(Error, "", format, v...)
}

// Fatalf to log message and warning messages will be logged.
func Fatalf(format string, v ...interface{}) {
	SystemLogger.printf(Fatal, "", format, v...)
}

// Infof to log message at info level.
func Infof(format string, v ...interface{}) {
	SystemLogger.printf(Info, "", format, v...)
}

// Verbosef to log message at verbose level.
func Verbosef(format string, v ...interface{}) {
	SystemLogger.printf(Verbose, "", format, v...)
}

// Debugf to log message at debug level.
func Debugf(format string, v ...interface{}) {
	SystemLogger.printf(Debug, "", format, v...)
}

// Tracef to log message at trace level.
func Tracef(format string, v ...interface{}) {
	SystemLogger.printf(Trace, "", format, v...)
}

// StackTrace returns the current goroutine stack.
func StackTrace() string {
	return string(debug.Stack())
}

// Timing utility function
func Timer(format string, v ...interface{}) Ender {
	return SystemLogger.timer(SystemLogger, format, v...)
}

// SetLogLevel sets current log level
func SetLogLevel(to LogLevel) {
	SystemLogger.SetLogLevel(to)
}

// IsEnabled reports whether messages at level would be written.
func IsEnabled(at LogLevel) bool {
	return SystemLogger.isEnabled(at)
}

// Run function only if output will be logged at debug level
func LazyDebug(fn func() string) {
	SystemLogger.LazyDebug(fn)
}

// Run function only if output will be logged at trace level
func LazyTrace(fn func() string) {
	SystemLogger.LazyTrace(fn)
}
