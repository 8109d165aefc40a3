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

package services

import (
	"context"
	"sync"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// MemoryStore is a process-local cache store used by tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]model.CacheRecord // keyed by table + "|" + source_url
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]model.CacheRecord)}
}

func memoryKey(platform model.Platform, sourceURL string) string {
	return platform.Table() + "|" + model.NormalizeURL(sourceURL)
}

func (s *MemoryStore) Lookup(_ context.Context, platform model.Platform, sourceURL string) (*model.CacheRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[memoryKey(platform, sourceURL)]
	if len(rows) == 0 {
		return nil, false, nil
	}
	latest := rows[0]
	for _, row := range rows[1:] {
		if !row.CollectedAt.Before(latest.CollectedAt) {
			latest = row
		}
	}
	return &latest, true, nil
}

func (s *MemoryStore) Upsert(_ context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[memoryKey(record.Platform, record.SourceURL)] = []model.CacheRecord{*record}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(record.Platform, record.SourceURL)
	s.rows[key] = append(s.rows[key], *record)
	return nil
}

func (s *MemoryStore) KnownIDs(_ context.Context, platform model.Platform) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, rows := range s.rows {
		for _, row := range rows {
			if row.Platform.Table() == platform.Table() {
				out[row.Id] = true
			}
		}
	}
	return out, nil
}

// Count returns the number of rows stored for a URL.
func (s *MemoryStore) Count(platform model.Platform, sourceURL string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[memoryKey(platform, sourceURL)])
}

func (s *MemoryStore) Close() error { return nil }
