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

// Package app assembles the long-lived services of the process from the
// configuration. The HTTP server and the CLI share it so both run exactly
// the same extraction and generation stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow"
)

// ErrGenerationUnavailable is returned by generation calls when no provider
// could be configured.
var ErrGenerationUnavailable = errors.New("generation provider is not configured")

// App holds the configured services.
type App struct {
	Config  *cloud.Config
	Clients *cloud.ServiceClients

	Store      ports.CacheStore
	WriteMode  ports.WriteMode
	Archive    *services.ArchiveService
	Generation *services.GenerationService // Nil when no provider is available.

	Extraction *workflow.ExtractionWorkflow
	Uploads    *workflow.UploadTranscriptionWorkflow
	Profiles   *workflow.ProfileAnalyzer
}

// LoadConfig reads configs/.env.toml plus the runtime file. The environment
// variables GCP_CONFIG_PREFIX and GCP_RUNTIME win over the arguments.
func LoadConfig(configDir string, runtime string) (*cloud.Config, error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" && configDir != "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
			return nil, err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" && runtime != "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, runtime); err != nil {
			return nil, err
		}
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// New connects every client and builds the workflows.
func New(ctx context.Context, config *cloud.Config) (*App, error) {
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	out, err := NewWithClients(ctx, config, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}
	return out, nil
}

// NewWithClients builds the services on top of existing clients.
func NewWithClients(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (*App, error) {
	mode, err := services.ParseWriteMode(config.Cache.WriteMode)
	if err != nil {
		return nil, err
	}
	store, err := services.NewCacheStore(ctx, config, clients.BiqQueryClient)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	out := &App{
		Config:    config,
		Clients:   clients,
		Store:     store,
		WriteMode: mode,
		Archive: &services.ArchiveService{
			StorageClient: clients.StorageClient,
			IAMClient:     clients.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Bucket:        config.Storage.AudioArchiveBucket,
			Prefix:        config.Storage.AudioArchivePrefix,
		},
	}
	out.Generation, err = newGenerationService(config, clients)
	if err != nil {
		slog.Warn("generation disabled", "error", err)
	}

	deps := workflow.ExtractionDeps{
		Store:       store,
		WriteMode:   mode,
		Sources:     clients.MetadataSources(),
		Resolvers:   clients.Resolvers,
		Transcriber: clients.Groq,
		HTTPClient:  &http.Client{Timeout: time.Duration(config.Extraction.HTTPTimeoutSeconds) * time.Second},
	}
	if out.Archive.Enabled() {
		deps.Archive = out.Archive
	}
	if out.Generation != nil {
		deps.Hooks = out.Generation
	}
	out.Extraction = workflow.NewExtractionWorkflow(config, deps)
	out.Uploads = workflow.NewUploadTranscriptionWorkflow(config, clients.StorageClient, clients.Groq)
	out.Profiles = workflow.NewProfileAnalyzer(clients.Scraper, store, out.Extraction, config.Application.ThreadPoolSize)
	return out, nil
}

func newGenerationService(config *cloud.Config, clients *cloud.ServiceClients) (*services.GenerationService, error) {
	gen := config.Generation
	ideas, err := clients.TextGenerator(gen.Provider, gen.AgentModel)
	if err != nil {
		return nil, err
	}
	trends, err := clients.TextGenerator(gen.TrendsProvider, gen.AgentModel)
	if err != nil {
		slog.Warn("trends provider unavailable, using the default provider", "provider", gen.TrendsProvider, "error", err)
		trends = nil
	}
	scripts, err := clients.TextGenerator(gen.ScriptProvider, gen.AgentModel)
	if err != nil {
		slog.Warn("script provider unavailable, using the default provider", "provider", gen.ScriptProvider, "error", err)
		scripts = nil
	}
	return services.NewGenerationService(config, ideas, trends, scripts)
}

// GenerationService returns the generation service or ErrGenerationUnavailable.
func (a *App) GenerationService() (*services.GenerationService, error) {
	if a.Generation == nil {
		return nil, ErrGenerationUnavailable
	}
	return a.Generation, nil
}

// Close releases the store and the clients.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			slog.Warn("close cache store", "error", err)
		}
	}
	if a.Clients != nil {
		a.Clients.Close()
	}
}
