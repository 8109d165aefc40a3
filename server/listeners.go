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
	"log/slog"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/commands"
)

// Keys of [topic_subscriptions].
const (
	SubscriptionExtractions = "ExtractionRequests" // {"url": "...", "platform": "..."}
	SubscriptionUploads     = "Uploads"            // Cloud Storage object-finalize notifications.
)

// SetupListeners attaches the workflows to the configured subscriptions and
// starts receiving in the background until ctx is done.
func SetupListeners(ctx context.Context, a *app.App) {
	for key, listener := range a.Clients.PubSubListeners {
		sub := a.Config.TopicSubscriptions[key]
		switch key {
		case SubscriptionExtractions:
			listener.SetCommand(a.Extraction)
		case SubscriptionUploads:
			listener.SetCommand(a.Uploads)
		default:
			slog.Warn("no workflow for subscription", "key", key, "subscription", sub.Name)
			continue
		}
		listener.SetResults(sub.ResultsTopic, commands.ParamResult)
		listener.Listen(ctx)
	}
}
