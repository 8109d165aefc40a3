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

// Package ports declares the contracts of the external collaborators the
// workflows depend on. Concrete adapters live in the cloud and services
// packages; tests substitute fakes.
package ports

import (
	"context"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// MetadataSource returns the scraped metadata of a single post or video.
type MetadataSource interface {
	FetchItem(ctx context.Context, sourceURL string, platform model.Platform) (*model.ContentItem, error)
}

// ProfileSource lists the recent posts of an account.
type ProfileSource interface {
	FetchProfile(ctx context.Context, handle string, platform model.Platform, limit int) ([]model.ContentItem, error)
}

// MediaResolver turns a permalink (and optionally its scraped metadata) into
// a directly downloadable media URL. Several resolvers are tried in order.
type MediaResolver interface {
	Name() string
	Resolve(ctx context.Context, sourceURL string, item *model.ContentItem) (string, error)
}

// Transcriber converts a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// TextGenerator sends one prompt to a hosted generative model. When
// jsonOutput is set the model is asked to answer with a JSON document only.
type TextGenerator interface {
	Generate(ctx context.Context, system string, prompt string, jsonOutput bool) (string, error)
}

// CacheStore is the deduplication store keyed by source URL.
type CacheStore interface {
	// Lookup returns the most recent record for sourceURL. The boolean is
	// false on a miss; no partial matching is performed.
	Lookup(ctx context.Context, platform model.Platform, sourceURL string) (*model.CacheRecord, bool, error)
	// Upsert overwrites the record of the same source URL or inserts it.
	Upsert(ctx context.Context, record *model.CacheRecord) error
	// Append always inserts, keeping earlier rows as an audit trail.
	Append(ctx context.Context, record *model.CacheRecord) error
	// KnownIDs returns the record ids already stored for a platform table.
	KnownIDs(ctx context.Context, platform model.Platform) (map[string]bool, error)
	Close() error
}

// WriteMode selects how extraction results are written back to the cache.
type WriteMode string

const (
	WriteModeUpsert WriteMode = "upsert"
	WriteModeAppend WriteMode = "append"
)

// Save writes record with the requested mode.
func Save(ctx context.Context, store CacheStore, mode WriteMode, record *model.CacheRecord) error {
	if mode == WriteModeAppend {
		return store.Append(ctx, record)
	}
	return store.Upsert(ctx, record)
}
