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

package main

import (
	"context"
	"log"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
)

// StateManager holds the configuration and the wired services.
type StateManager struct {
	config *cloud.Config
	app    *app.App
}

var state = &StateManager{}

// GetConfig loads configs/.env.toml and configs/.env.local.toml once.
func GetConfig() *cloud.Config {
	if state.config == nil {
		config, err := app.LoadConfig("configs", "local")
		if err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// InitState connects the clients and builds every service.
func InitState(ctx context.Context) {
	a, err := app.New(ctx, GetConfig())
	if err != nil {
		panic(err)
	}
	state.app = a
}
