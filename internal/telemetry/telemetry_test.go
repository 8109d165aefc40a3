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

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-content-extractor/internal/telemetry"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupLoggingUsesCloudLoggingKeys(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "app.log")
	closeLog, err := telemetry.SetupLogging(telemetry.LogOptions{Writer: &buf, File: logFile, Level: slog.LevelInfo})
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "span")
	slog.WarnContext(ctx, "cache write-back failed", "url", "https://youtu.be/x")
	span.End()
	slog.Debug("dropped below the level")
	require.NoError(t, closeLog())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "cache write-back failed", entry["message"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["logging.googleapis.com/trace"])

	copied, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(copied))
}

func TestSetupOpenTelemetryDisabled(t *testing.T) {
	config := test.GetConfig()
	shutdown, err := telemetry.SetupOpenTelemetry(context.Background(), config)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
