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

package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestArchiveUploadAbortsOnReadFailure(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bucket": "audio-archive", "name": "partial"}`))
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := storage.NewClient(ctx, option.WithEndpoint(server.URL+"/storage/v1/"), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	archive := &services.ArchiveService{StorageClient: client, Bucket: "audio-archive"}
	require.True(t, archive.Enabled())

	// A directory opens but cannot be read, so the copy fails before any byte is written.
	_, err = archive.Upload(ctx, reelURL, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive upload")
	assert.Zero(t, requests.Load(), "no object may be finalized after a failed copy")
}

func TestArchiveDisabled(t *testing.T) {
	var archive *services.ArchiveService
	assert.False(t, archive.Enabled())
	_, err := (&services.ArchiveService{}).Upload(context.Background(), reelURL, "/tmp/none.mp3")
	assert.Error(t, err)
}
