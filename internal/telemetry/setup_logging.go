// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry sets up logging, tracing and metrics for the server and
// the CLI. Logs are structured for Cloud Logging and carry the trace context
// of the span active when they were written.
package telemetry

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"
)

// LogOptions controls where logs go and how verbose they are.
type LogOptions struct {
	Writer io.Writer  // Defaults to os.Stdout.
	File   string     // Optional copy of every line, truncated on start.
	Level  slog.Level // Minimum level.
	// Text switches to the human readable handler. It is implied when Writer
	// is an interactive terminal.
	Text bool
}

// spanContextLogHandler adds the trace and span ids of the active span using
// the special fields of Cloud Logging.
type spanContextLogHandler struct {
	slog.Handler
}

func (t *spanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		record.AddAttrs(
			slog.Any("logging.googleapis.com/trace", s.TraceID()),
			slog.Any("logging.googleapis.com/spanId", s.SpanID()),
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return t.Handler.Handle(ctx, record)
}

func (t *spanContextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanContextLogHandler{Handler: t.Handler.WithAttrs(attrs)}
}

func (t *spanContextLogHandler) WithGroup(name string) slog.Handler {
	return &spanContextLogHandler{Handler: t.Handler.WithGroup(name)}
}

// replacer renames level, time and msg to the Cloud Logging keys.
func replacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#LogSeverity
		if level, ok := a.Value.Any().(slog.Level); ok && level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetupLogging installs the default slog logger and redirects the standard
// log package to the same destination. The returned function closes the log
// file, if any.
func SetupLogging(opts LogOptions) (func() error, error) {
	out := opts.Writer
	if out == nil {
		out = os.Stdout
	}
	text := opts.Text || isTerminal(out)

	closer := func() error { return nil }
	if opts.File != "" {
		file, err := os.Create(opts.File)
		if err != nil {
			return closer, err
		}
		out = io.MultiWriter(out, file)
		closer = file.Close
	}

	log.SetOutput(out)
	log.SetPrefix("[INFO] ")
	log.SetFlags(log.Ldate | log.Ltime)

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: replacer})
	}
	slog.SetDefault(slog.New(&spanContextLogHandler{Handler: handler}))
	return closer, nil
}
