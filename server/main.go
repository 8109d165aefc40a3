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

// Package main is the entry point of the content extraction server.
//
// The server exposes the extraction, transcription and generation workflows
// over a REST API (gin, traced with otelgin) and, when Pub/Sub subscriptions
// are configured, runs the same extraction workflow for queued requests.
//
// Files:
//   - main.go: process lifecycle and graceful shutdown.
//   - routes.go: the /api/v1 routes and the error to status mapping.
//   - setup.go: configuration loading and service wiring.
//   - listeners.go: Pub/Sub subscriptions.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/telemetry"
)

func main() {
	closeLog, err := telemetry.SetupLogging(telemetry.LogOptions{File: "app.log", Level: slog.LevelInfo})
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer func() { _ = closeLog() }()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()
	slog.Info("Tracing initialized")

	InitState(ctx)
	defer state.app.Close()
	slog.Info("Initialized State")

	SetupListeners(ctx, state.app)

	port := config.Application.HTTPPort
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewRouter(state.app),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // Audio transcription of a long video.
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server ready", "port", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	log.Println("Server exiting")
}
