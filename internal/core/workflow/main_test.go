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

package workflow_test

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-content-extractor/internal/telemetry"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const tName = "github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow/test"

var (
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

// TestMain installs the process logger and the (disabled) telemetry stack
// the workflows expect.
func TestMain(m *testing.M) {
	flag.Parse()
	ctx, cancel := context.WithCancel(context.Background())

	level := slog.LevelWarn
	var out io.Writer = io.Discard
	if testing.Verbose() {
		level, out = slog.LevelDebug, os.Stderr
	}
	if _, err := telemetry.SetupLogging(telemetry.LogOptions{Writer: out, Level: level}); err != nil {
		panic(err)
	}
	shutdown, err := telemetry.SetupOpenTelemetry(ctx, test.GetConfig())
	if err != nil {
		panic(err)
	}

	ctx, span := tracer.Start(ctx, "workflow-tests")
	logger.InfoContext(ctx, "starting workflow tests")
	code := m.Run()
	span.End()

	if err := shutdown(context.Background()); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	cancel()
	os.Exit(code)
}
