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
	"log/slog"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// CacheWriteBack persists a freshly extracted transcript so the next request
// for the same URL is a cache hit. A failed write is reported as a warning:
// the caller still gets the transcript it paid for.
type CacheWriteBack struct {
	cor.BaseCommand
	store ports.CacheStore
	mode  ports.WriteMode
}

func NewCacheWriteBack(name string, store ports.CacheStore, mode ports.WriteMode) *CacheWriteBack {
	out := &CacheWriteBack{BaseCommand: *cor.NewBaseCommand(name), store: store, mode: mode}
	out.InputParamName = ParamTranscript
	return out
}

func (c *CacheWriteBack) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && requestFrom(context) != nil && !cacheHit(context)
}

func (c *CacheWriteBack) Execute(context cor.Context) {
	req := requestFrom(context)
	source, _ := context.Get(ParamSource).(model.TranscriptSource)
	transcript := model.Transcript{SourceURL: req.URL, Text: stringFrom(context, ParamTranscript), Source: source}

	record := model.NewCacheRecord(req.URL, req.Platform, itemFrom(context), transcript, stringFrom(context, ParamHook))
	if err := ports.Save(context.GetContext(), c.store, c.mode, record); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Error("cache write-back failed", "url", req.URL, "mode", c.mode, "error", err)
		addWarning(context, c.GetName()+": "+err.Error())
		return
	}
	c.Succeed(context)
	slog.Info("cache updated", "url", req.URL, "id", record.Id, "source", source, "mode", c.mode)
	context.Add(ParamRecord, record)
}
