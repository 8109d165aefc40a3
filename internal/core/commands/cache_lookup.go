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

package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// CacheLookup is the first extraction strategy. A hit short-circuits every
// paid call: the stored transcript becomes the result and ParamCacheHit is
// set so the write-back and hook analysis are skipped.
type CacheLookup struct {
	cor.BaseCommand
	store ports.CacheStore
}

func NewCacheLookup(name string, store ports.CacheStore) *CacheLookup {
	out := &CacheLookup{BaseCommand: *cor.NewBaseCommand(name), store: store}
	out.InputParamName = ParamRequest
	return out
}

// QuietMiss keeps cache misses out of the attempt list.
func (c *CacheLookup) QuietMiss() bool { return true }

func (c *CacheLookup) Execute(context cor.Context) {
	req := requestFrom(context)
	record, found, err := c.store.Lookup(context.GetContext(), req.Platform, req.URL)
	if err != nil {
		c.Fail(context, fmt.Errorf("cache lookup %s: %w", req.URL, err))
		return
	}
	if !found {
		slog.Debug("cache miss", "url", req.URL)
		return
	}
	c.Succeed(context)
	slog.Info("cache hit", "url", req.URL, "id", record.Id, "collected_at", record.CollectedAt)
	context.Add(ParamRecord, record)
	context.Add(ParamCacheHit, true)
	setTranscript(context, record.Transcript, model.SourceCache)
}
