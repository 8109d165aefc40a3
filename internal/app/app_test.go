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

package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigTestRuntime(t *testing.T) {
	test.SetupOS(t)

	config, err := app.LoadConfig("ignored", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "content-extractor-test", config.Application.Name)
	assert.Equal(t, "memory", config.Cache.Backend)
	assert.Equal(t, "groq", config.Generation.Provider)
	assert.Equal(t, 50, config.Extraction.MinCaptionLength)
	assert.Contains(t, config.AgentModels, "creative-flash")
	assert.Contains(t, config.TopicSubscriptions, "ExtractionRequests")
}

func TestNewWithoutGoogleCloud(t *testing.T) {
	config := test.GetConfig()
	config.Generation.Provider = "groq"

	a, err := app.New(context.Background(), config)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, ports.WriteModeUpsert, a.WriteMode)
	assert.False(t, a.Archive.Enabled())
	assert.Empty(t, a.Clients.PubSubListeners)
	gen, err := a.GenerationService()
	require.NoError(t, err)
	assert.NotNil(t, gen)
	assert.NotNil(t, a.Extraction)
	assert.NotNil(t, a.Uploads)
	assert.NotNil(t, a.Profiles)
}

func TestNewGenerationUnavailable(t *testing.T) {
	config := test.GetConfig()
	config.Generation.Provider = "gemini"

	a, err := app.NewWithClients(context.Background(), config, &cloud.ServiceClients{
		Scraper: cloud.NewScraperClient(config.Scraper),
		Groq:    cloud.NewGroqClient(config.GroqLLM, config.Speech),
	})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.GenerationService()
	assert.ErrorIs(t, err, app.ErrGenerationUnavailable)
}

func TestNewWithSQLiteStore(t *testing.T) {
	config := test.GetConfig()
	config.Cache.Backend = "sqlite"
	config.Cache.DSN = filepath.Join(t.TempDir(), "cache.db")
	config.Cache.WriteMode = "append"

	a, err := app.New(context.Background(), config)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, ports.WriteModeAppend, a.WriteMode)
	assert.FileExists(t, config.Cache.DSN)
}

func TestNewRejectsBadConfig(t *testing.T) {
	config := test.GetConfig()
	config.Cache.WriteMode = "sometimes"
	_, err := app.New(context.Background(), config)
	assert.Error(t, err)

	config = test.GetConfig()
	config.Cache.Backend = "bigquery"
	_, err = app.New(context.Background(), config)
	assert.ErrorContains(t, err, "BigQuery client")
}
