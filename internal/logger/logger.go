// Copyright 2026 The jcxfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the leveled, structured logging every jcxfs
// component writes through: a slog.Logger underneath, a custom TRACE level
// below slog's own Debug, a JSON/text format switch, and file rotation via
// lumberjack rather than hand-rolled log rolling.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted by SetLoggingLevel and the cfg package's LogSeverity
// config value. OFF disables all output.
const (
	SeverityTrace   = "TRACE"
	SeverityDebug   = "DEBUG"
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
	SeverityOff     = "OFF"
)

// Custom slog levels. slog.LevelDebug/-4 is the lowest level the stdlib
// defines; TRACE sits one rung below it so "-vv" style verbosity has
// somewhere further to go. OFF sits above Error so nothing is ever emitted.
const (
	LevelTrace slog.Level = slog.LevelDebug - 4
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	levelOff   slog.Level = slog.LevelError + 4
)

func levelString(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// loggerFactory owns the program's log level and output format and builds the
// slog.Handler that defaultLogger writes through. format is either "json" or
// "text"; anything else behaves as "text".
type loggerFactory struct {
	format     string
	programLvl *slog.LevelVar
	out        io.Writer
	closer     io.Closer
}

var defaultLoggerFactory = &loggerFactory{
	format:     "text",
	programLvl: new(slog.LevelVar),
	out:        os.Stderr,
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.programLvl, ""))

// jsonRecord is the JSON wire shape:
// {"timestamp":{"seconds":...,"nanos":...},"severity":"...","message":"..."}
type jsonRecord struct {
	Timestamp struct {
		Seconds int64 `json:"seconds"`
		Nanos   int   `json:"nanos"`
	} `json:"timestamp"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// textHandler and jsonHandler are small hand-rolled slog.Handler
// implementations rather than slog's built-in TextHandler/JSONHandler,
// because the wire format here (time="..." severity=... message="...", and
// the nested {seconds,nanos} timestamp object) doesn't match either stock
// encoder's output and there is no third-party slog-format library in the
// corpus to reach for instead.
type textHandler struct {
	w   io.Writer
	lvl *slog.LevelVar
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), levelString(r.Level), r.Message)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

type jsonHandler struct {
	w   io.Writer
	lvl *slog.LevelVar
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *jsonHandler) Handle(_ context.Context, r slog.Record) error {
	var rec jsonRecord
	rec.Timestamp.Seconds = r.Time.Unix()
	rec.Timestamp.Nanos = r.Time.Nanosecond()
	rec.Severity = levelString(r.Level)
	rec.Message = r.Message

	enc := json.NewEncoder(h.w)
	return enc.Encode(rec)
}

func (h *jsonHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *jsonHandler) WithGroup(_ string) slog.Handler      { return h }

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, lvl *slog.LevelVar, _ string) slog.Handler {
	if f.format == "json" {
		return &jsonHandler{w: w, lvl: lvl}
	}
	return &textHandler{w: w, lvl: lvl}
}

// setLoggingLevel maps a severity name onto the slog.LevelVar that gates the
// default handler, using the TRACE/DEBUG/.../OFF vocabulary.
func setLoggingLevel(level string, programLvl *slog.LevelVar) {
	switch level {
	case SeverityTrace:
		programLvl.Set(LevelTrace)
	case SeverityDebug:
		programLvl.Set(LevelDebug)
	case SeverityInfo:
		programLvl.Set(LevelInfo)
	case SeverityWarning:
		programLvl.Set(LevelWarn)
	case SeverityError:
		programLvl.Set(LevelError)
	case SeverityOff:
		programLvl.Set(levelOff)
	default:
		programLvl.Set(LevelInfo)
	}
}

// SetLoggingLevel reconfigures the default logger's minimum severity. Safe to
// call at any point; cfg.Config.Logging.Severity drives this at startup.
func SetLoggingLevel(level string) {
	setLoggingLevel(level, defaultLoggerFactory.programLvl)
}

// SetFormat switches the default logger between "text" and "json" output.
// Must be called before any log calls to take effect on already-buffered
// state; in practice it is set once at startup from cfg.Config.Logging.Format.
func SetFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.out, defaultLoggerFactory.programLvl, ""))
}

// InitLogFile redirects the default logger's output through a lumberjack
// rotator writing to path, replacing the stderr default. bufferSize sizes the
// AsyncLogger's internal channel; 0 disables async buffering.
func InitLogFile(path string, maxSizeMB, maxBackups, maxAgeDays int, bufferSize int) error {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	var w io.Writer = lj
	var closer io.Closer = lj
	if bufferSize > 0 {
		al := NewAsyncLogger(lj, bufferSize)
		w = al
		closer = al
	}

	defaultLoggerFactory.out = w
	defaultLoggerFactory.closer = closer
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, defaultLoggerFactory.programLvl, ""))
	return nil
}

// Close flushes and closes any rotating log file opened via InitLogFile. A
// no-op if logging is still going to stderr.
func Close() error {
	if defaultLoggerFactory.closer != nil {
		return defaultLoggerFactory.closer.Close()
	}
	return nil
}

func Tracef(format string, v ...any) { defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...)) }
func Debugf(format string, v ...any) { defaultLogger.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { defaultLogger.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { defaultLogger.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { defaultLogger.Error(fmt.Sprintf(format, v...)) }
