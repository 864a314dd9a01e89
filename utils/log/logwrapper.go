/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package log wraps logrus with a caller hook and a per-package level filter.
package log

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// PanicLevel level, highest level of severity.
	PanicLevel logrus.Level = iota
	// FatalLevel level. Logs and then calls `os.Exit(1)`.
	FatalLevel
	// ErrorLevel level. Used for errors that should definitely be noted.
	ErrorLevel
	// WarnLevel level. Non-critical entries that deserve eyes.
	WarnLevel
	// InfoLevel level. General operational entries.
	InfoLevel
	// DebugLevel level. Very verbose logging.
	DebugLevel
)

const modulePrefix = "github.com/dashevo/drive/"

// PkgDebugLogFilter caps the verbosity of chatty packages: entries of a listed package
// above its level are dropped.
var PkgDebugLogFilter = map[string]logrus.Level{
	"chainbus": InfoLevel,
	"rpc":      InfoLevel,
}

// Logger wraps logrus logger type.
type Logger logrus.Logger

// Fields defines the field map to pass to `WithFields`.
type Fields logrus.Fields

// CallerHook adds the calling function to error entries, and the stack to entries of
// StackLevels.
type CallerHook struct {
	StackLevels []logrus.Level
}

// NewCallerHook creates new CallerHook
func NewCallerHook(stackLevels []logrus.Level) *CallerHook {
	return &CallerHook{
		StackLevels: stackLevels,
	}
}

// Fire implements logrus.Hook.
func (hook *CallerHook) Fire(entry *logrus.Entry) error {
	pkg, caller, stack := hook.caller(entry.Level)
	if level, ok := PkgDebugLogFilter[pkg]; ok && entry.Level > level {
		nilLogger := logrus.New()
		nilLogger.Formatter = &NilFormatter{}
		nilLogger.Out = &NilWriter{}
		entry.Logger = nilLogger
		return nil
	}
	if entry.Level <= logrus.ErrorLevel {
		entry.Data["caller"] = caller
	}
	if stack != nil {
		entry.Data["stack"] = stack
	}
	return nil
}

// Levels implements logrus.Hook. Every level passes through the package filter.
func (hook *CallerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *CallerHook) wantsStack(level logrus.Level) bool {
	for _, l := range hook.StackLevels {
		if l == level {
			return true
		}
	}
	return false
}

// caller walks out of logrus and this package and reports the first foreign frame.
func (hook *CallerHook) caller(level logrus.Level) (pkg, caller string, stack []string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(4, pcs)
	if n == 0 {
		return
	}
	frames := runtime.CallersFrames(pcs[:n])
	found := false
	for {
		f, more := frames.Next()
		if !found && !strings.Contains(f.File, "sirupsen/logrus") && !strings.Contains(f.File, "utils/log/") {
			fn := strings.TrimPrefix(f.Function, modulePrefix)
			pkg = strings.SplitN(fn[strings.LastIndex(fn, "/")+1:], ".", 2)[0]
			caller = fmt.Sprintf("%s:%d %s", filepath.Base(f.File), f.Line, fn)
			found = true
			if !hook.wantsStack(level) {
				return
			}
		}
		if found && f.Line > 0 {
			stack = append(stack, fmt.Sprintf("#%d %s@%s:%d",
				len(stack), strings.TrimPrefix(f.Function, modulePrefix), filepath.Base(f.File), f.Line))
		}
		if !more {
			return
		}
	}
}

func init() {
	logrus.AddHook(NewCallerHook([]logrus.Level{logrus.PanicLevel, logrus.FatalLevel}))
}

// SetOutput sets the standard logger output.
func SetOutput(out io.Writer) {
	logrus.SetOutput(out)
}

// SetLevel sets the standard logger level.
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// GetLevel returns the standard logger level.
func GetLevel() logrus.Level {
	return logrus.GetLevel()
}

// ParseLevel parse the level string and returns the logger level.
func ParseLevel(lvl string) (logrus.Level, error) {
	return logrus.ParseLevel(lvl)
}

// SetStringLevel enforce current log level.
func SetStringLevel(lvl string, defaultLevel logrus.Level) {
	if lvl, err := ParseLevel(lvl); err != nil {
		SetLevel(defaultLevel)
	} else {
		SetLevel(lvl)
	}
}

// SetStringFormat selects the output format: "json", or text for anything else.
func SetStringFormat(format string) {
	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// WithError creates an entry from the standard logger and adds an error to it.
func WithError(err error) *Entry {
	return WithField(logrus.ErrorKey, err)
}

// WithField creates an entry from the standard logger and adds a field to it.
func WithField(key string, value interface{}) *Entry {
	return (*Entry)(logrus.WithField(key, value))
}

// WithFields creates an entry from the standard logger and adds multiple
// fields to it.
func WithFields(fields Fields) *Entry {
	return (*Entry)(logrus.WithFields(logrus.Fields(fields)))
}

// Info logs a message at level Info on the standard logger.
func Info(args ...interface{}) {
	logrus.Info(args...)
}

// Warning logs a message at level Warn on the standard logger.
func Warning(args ...interface{}) {
	logrus.Warning(args...)
}

// Debugf logs a message at level Debug on the standard logger.
func Debugf(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// Infof logs a message at level Info on the standard logger.
func Infof(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// NilFormatter renders nothing; the filter uses it for dropped entries.
type NilFormatter struct{}

// Format implements logrus.Formatter.
func (*NilFormatter) Format(*logrus.Entry) ([]byte, error) { return nil, nil }

// NilWriter discards everything written to it.
type NilWriter struct{}

// Write implements io.Writer.
func (*NilWriter) Write([]byte) (int, error) { return 0, nil }
