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

// Package test holds helpers shared by the package tests: a deterministic
// configuration, fixtures and fakes for the ports.
package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
)

// HandleErr fails the test on a setup error.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

// GetConfig returns the defaults with every external dependency switched to
// a local stand-in: memory cache, no archive, no hooks, fast retries.
func GetConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.Name = "content-extractor-test"
	config.Application.GoogleProjectId = ""
	config.Application.ThreadPoolSize = 2
	config.Application.TelemetryEnabled = false
	config.Cache.Backend = "memory"
	config.Extraction.DownloadRetries = 2
	config.Extraction.AnalyzeHooks = false
	config.Generation.MaxAttempts = 2
	return config
}

// ConfigDir returns the absolute path of the repository configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points LoadConfig at the repository configs with the test runtime.
func SetupOS(t *testing.T) {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	t.Setenv(cloud.EnvConfigRuntime, "test")
}

// FakeFfmpeg writes an executable that copies the -i input to the last
// argument, standing in for ffmpeg. Tests using it need a POSIX shell.
func FakeFfmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
in=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    *) out="$1"; shift ;;
  esac
done
cp "$in" "$out"
`
	HandleErr(os.WriteFile(path, []byte(script), 0o755), t)
	return path
}

// FailingFfmpeg writes an executable that always exits with status 1.
func FailingFfmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	HandleErr(os.WriteFile(path, []byte("#!/bin/sh\necho 'invalid data' >&2\nexit 1\n"), 0o755), t)
	return path
}

// MP3Bytes returns a payload sniffed as audio/mpeg.
func MP3Bytes() []byte {
	out := []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
	for len(out) < 1024 {
		out = append(out, 0xFF, 0xFB, 0x90, 0x44)
	}
	return out
}

// PNGBytes returns a payload sniffed as image/png.
func PNGBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
}

// GetTestUploadNotificationText is an OBJECT_FINALIZE notification of an
// uploaded recording.
func GetTestUploadNotificationText() string {
	return `{
  "kind": "storage#object",
  "id": "content_uploads/interview-001.mp4/1728615848664286",
  "name": "interview-001.mp4",
  "bucket": "content_uploads",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "size": "259348037",
  "metadata": { "touch": "18" }
}`
}
