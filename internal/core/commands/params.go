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

// Package commands provides the concrete cor.Command implementations of the
// extraction pipeline. Commands exchange data through the named context
// parameters declared here rather than through CtxIn/CtxOut, because the
// fallback strategies are nested chains that each rewrite CtxIn.
package commands

import (
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

const (
	ParamRequest    = "__REQUEST__"     // *model.ExtractionRequest
	ParamItem       = "__ITEM__"        // *model.ContentItem
	ParamTranscript = "__TRANSCRIPT__"  // string; output of the fallback chain
	ParamSource     = "__SOURCE__"      // model.TranscriptSource
	ParamCacheHit   = "__CACHE_HIT__"   // bool
	ParamRecord     = "__RECORD__"      // *model.CacheRecord
	ParamMediaFile  = "__MEDIA_FILE__"  // string; downloaded media path
	ParamAudioFile  = "__AUDIO_FILE__"  // string; extracted mp3 path
	ParamArchiveURI = "__ARCHIVE_URI__" // string; gs:// URI of archived audio
	ParamHook       = "__HOOK__"        // string
	ParamWarnings   = "__WARNINGS__"    // []string; non-fatal failures
	ParamResult     = "__RESULT__"      // *model.ExtractionResult
)

func requestFrom(context cor.Context) *model.ExtractionRequest {
	req, _ := context.Get(ParamRequest).(*model.ExtractionRequest)
	return req
}

func itemFrom(context cor.Context) *model.ContentItem {
	item, _ := context.Get(ParamItem).(*model.ContentItem)
	return item
}

func stringFrom(context cor.Context, key string) string {
	v, _ := context.Get(key).(string)
	return v
}

func cacheHit(context cor.Context) bool {
	hit, _ := context.Get(ParamCacheHit).(bool)
	return hit
}

// setTranscript stores a strategy result together with its source.
func setTranscript(context cor.Context, text string, source model.TranscriptSource) {
	context.Add(ParamTranscript, text)
	context.Add(ParamSource, source)
}

// addWarning records a non-fatal failure that should still be reported.
func addWarning(context cor.Context, warning string) {
	warnings, _ := context.Get(ParamWarnings).([]string)
	context.Add(ParamWarnings, append(warnings, warning))
}

// BuildResult assembles the ExtractionResult from a finished context.
func BuildResult(context cor.Context) *model.ExtractionResult {
	req := requestFrom(context)
	if req == nil {
		return nil
	}
	out := &model.ExtractionResult{
		SourceURL:  req.URL,
		Platform:   req.Platform,
		Transcript: stringFrom(context, ParamTranscript),
		CacheHit:   cacheHit(context),
		Hook:       stringFrom(context, ParamHook),
		Item:       itemFrom(context),
	}
	out.Source, _ = context.Get(ParamSource).(model.TranscriptSource)
	if record, ok := context.Get(ParamRecord).(*model.CacheRecord); ok && out.CacheHit {
		out.Hook = record.Hook
	}
	if attempts, ok := context.Get(cor.FallbackAttemptsParam).([]error); ok {
		for _, err := range attempts {
			out.Attempts = append(out.Attempts, err.Error())
		}
	}
	if warnings, ok := context.Get(ParamWarnings).([]string); ok {
		out.Attempts = append(out.Attempts, warnings...)
	}
	return out
}
