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

// Package workflow assembles the commands into the pipelines the server,
// the CLI and the Pub/Sub listeners run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/commands"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// Strategy names, in the order they are tried. They double as the keys of
// the attempt list reported in an ExtractionResult.
const (
	StrategyCache    = "cache-lookup"
	StrategyCaptions = "captions"
	StrategyAudio    = "audio-transcription"
	StrategyMetadata = "metadata-fallback"
)

// ExtractionDeps are the collaborators of the extraction workflow.
type ExtractionDeps struct {
	Store       ports.CacheStore
	WriteMode   ports.WriteMode
	Sources     []ports.MetadataSource
	Resolvers   []ports.MediaResolver
	Transcriber ports.Transcriber
	Archive     commands.AudioArchive // Optional.
	Hooks       commands.HookAnalyst  // Optional.
	HTTPClient  *http.Client          // Media downloads; optional.
}

// ExtractionWorkflow turns a URL into a transcript:
//
//	request -> first of [cache, captions, audio+speech, metadata] -> hook -> cache write-back
//
// A cache hit ends the run without any paid call.
type ExtractionWorkflow struct {
	cor.BaseCommand
	config *cloud.Config
	deps   ExtractionDeps
	chain  cor.Chain

	mediaBackoff func(attempt int) time.Duration
}

func NewExtractionWorkflow(config *cloud.Config, deps ExtractionDeps) *ExtractionWorkflow {
	out := &ExtractionWorkflow{
		BaseCommand: *cor.NewBaseCommand("extraction-workflow"),
		config:      config,
		deps:        deps,
	}
	out.initializeChain()
	return out
}

func (w *ExtractionWorkflow) initializeChain() {
	ex := w.config.Extraction

	captions := cor.NewBaseChain(StrategyCaptions)
	captions.AddCommand(commands.NewMetadataScraper("metadata-scraper", w.deps.Sources...))
	captions.AddCommand(commands.NewCaptionsExtractor("captions-extractor", ex.MinCaptionLength))

	downloader := commands.NewMediaDownloader("media-downloader", w.deps.Resolvers, w.deps.HTTPClient,
		ex.DownloadRetries, ex.UserAgent, ex.TempDir)
	if w.mediaBackoff != nil {
		downloader.Backoff = w.mediaBackoff
	}
	audio := cor.NewBaseChain(StrategyAudio)
	audio.AddCommand(downloader)
	audio.AddCommand(commands.NewAudioExtractor("audio-extractor", ex.FfmpegPath, ex.AudioBitrate, ex.MaxAudioBytes, ex.TempDir))
	audio.AddCommand(commands.NewSpeechTranscriber("speech-transcriber", w.deps.Transcriber))
	audio.AddCommand(commands.NewAudioArchiver("audio-archiver", w.deps.Archive))

	strategies := cor.NewFallbackChain("transcript-strategies", commands.ParamTranscript)
	strategies.AddCommand(commands.NewCacheLookup(StrategyCache, w.deps.Store))
	strategies.AddCommand(captions)
	strategies.AddCommand(audio)
	strategies.AddCommand(commands.NewMetadataFallback(StrategyMetadata))

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewExtractionRequestReader("extraction-request-reader"))
	out.AddCommand(strategies)
	if ex.AnalyzeHooks {
		out.AddCommand(commands.NewHookAnalyzer("hook-analyzer", w.deps.Hooks))
	}
	out.AddCommand(commands.NewCacheWriteBack("cache-write-back", w.deps.Store, w.deps.WriteMode))
	w.chain = out
}

// SetMediaBackoff replaces the pause between media download retries.
func (w *ExtractionWorkflow) SetMediaBackoff(backoff func(attempt int) time.Duration) {
	w.mediaBackoff = backoff
	w.initializeChain()
}

// Execute runs the chain and, on success, leaves the result under
// commands.ParamResult.
func (w *ExtractionWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if context.HasErrors() {
		w.GetErrorCounter().Add(context.GetContext(), 1)
		return
	}
	w.Succeed(context)
	context.Add(commands.ParamResult, commands.BuildResult(context))
}

// Extract runs the workflow for one request. item may carry metadata that is
// already known (profile runs) so it is not scraped again. Temporary files
// are removed before Extract returns.
func (w *ExtractionWorkflow) Extract(ctx context.Context, request model.ExtractionRequest, item *model.ContentItem) (*model.ExtractionResult, error) {
	chCtx := cor.NewBaseContextWith(ctx)
	defer chCtx.Close()

	chCtx.Add(cor.CtxIn, &request)
	if item != nil {
		chCtx.Add(commands.ParamItem, item)
	}
	w.Execute(chCtx)

	if err := cor.JoinErrors(chCtx); err != nil {
		return nil, extractionError(request.URL, err)
	}
	result, _ := chCtx.Get(commands.ParamResult).(*model.ExtractionResult)
	return result, nil
}

// extractionError marks chain failures as ErrExtractionFailed, leaving
// validation errors and cancellation untouched.
func extractionError(subject string, err error) error {
	if errors.Is(err, model.ErrValidation) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrExtractionFailed, subject, err)
}
