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

package workflow_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const youTubeURL = "https://youtube.com/watch?v=abc"

type fixture struct {
	config      *cloud.Config
	store       *services.MemoryStore
	metadata    *test.MetadataSource
	resolver    *test.Resolver
	transcriber *test.Transcriber
	archive     *test.Archive
	media       *httptest.Server
	tempDir     string
}

func newFixture(t *testing.T, mediaBody []byte) *fixture {
	t.Helper()
	f := &fixture{
		config:      test.GetConfig(),
		store:       services.NewMemoryStore(),
		metadata:    &test.MetadataSource{Items: map[string]*model.ContentItem{}},
		transcriber: &test.Transcriber{Text: "hello world"},
		archive:     &test.Archive{},
		tempDir:     t.TempDir(),
	}
	f.media = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mediaBody)
	}))
	t.Cleanup(f.media.Close)
	f.resolver = &test.Resolver{URL: f.media.URL + "/media"}
	f.config.Extraction.TempDir = f.tempDir
	f.config.Extraction.FfmpegPath = test.FakeFfmpeg(t)
	return f
}

func (f *fixture) workflow() *workflow.ExtractionWorkflow {
	w := workflow.NewExtractionWorkflow(f.config, workflow.ExtractionDeps{
		Store:       f.store,
		WriteMode:   ports.WriteModeUpsert,
		Sources:     []ports.MetadataSource{f.metadata},
		Resolvers:   []ports.MediaResolver{f.resolver},
		Transcriber: f.transcriber,
		Archive:     f.archive,
		Hooks:       &test.HookAnalyst{Hook: "Stop scrolling"},
	})
	w.SetMediaBackoff(func(int) time.Duration { return 0 })
	return w
}

func (f *fixture) tempFiles(t *testing.T) []string {
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEmptyCaptionsFallThroughToSpeechAndAreCached(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.metadata.Items[youTubeURL] = &model.ContentItem{SourceURL: youTubeURL, Platform: model.PlatformYouTube, IsVideo: true, Subtitles: ""}
	w := f.workflow()

	first, err := w.Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", first.Transcript)
	assert.Equal(t, model.SourceSpeechToText, first.Source)
	assert.False(t, first.CacheHit)
	assert.NotContains(t, strings.Join(first.Attempts, "\n"), workflow.StrategyCache, "a cache miss is not a failed attempt")
	assert.Equal(t, 1, f.store.Count(model.PlatformYouTube, youTubeURL))
	assert.Equal(t, []string{youTubeURL}, f.archive.Uploads())

	second, err := w.Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", second.Transcript)
	assert.Equal(t, model.SourceCache, second.Source)
	assert.True(t, second.CacheHit)

	assert.Equal(t, 1, f.resolver.Calls(), "download must not run again")
	assert.Equal(t, 1, f.transcriber.Calls(), "transcription must not run again")
	assert.Equal(t, 1, f.metadata.Calls(), "scraping must not run again")
	assert.Equal(t, 1, f.store.Count(model.PlatformYouTube, youTubeURL))
	assert.Empty(t, f.tempFiles(t))
}

func TestUsableCaptionsNeverDownloadAudio(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	subtitles := strings.Repeat("native captions are long enough. ", 3)
	f.metadata.Items[youTubeURL] = &model.ContentItem{SourceURL: youTubeURL, Platform: model.PlatformYouTube, IsVideo: true, Subtitles: subtitles}

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceCaptions, result.Source)
	assert.Equal(t, strings.TrimSpace(subtitles), result.Transcript)
	assert.Empty(t, result.Attempts)
	assert.Zero(t, f.resolver.Calls())
	assert.Zero(t, f.transcriber.Calls())

	record, found, err := f.store.Lookup(context.Background(), model.PlatformYouTube, youTubeURL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(model.SourceCaptions), record.Source)
	assert.Equal(t, model.NoHook, record.Hook, "hook analysis is disabled in the test config")
}

func TestCarouselUsesCaptionAndAltText(t *testing.T) {
	const carouselURL = "https://www.instagram.com/p/CAR0USEL"
	f := newFixture(t, test.MP3Bytes())
	f.metadata.Items[carouselURL] = &model.ContentItem{
		SourceURL:   carouselURL,
		Platform:    model.PlatformInstagramCarousel,
		CaptionText: "Five mistakes every new founder makes",
		ImageAlts:   []string{"Slide one: hiring too fast", "Slide two: ignoring cash flow"},
	}

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: carouselURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceCaptions, result.Source)
	assert.True(t, strings.HasPrefix(result.Transcript, "CAPTION:\nFive mistakes"))
	assert.Contains(t, result.Transcript, "VISUAL:\nSlide one")
	assert.Zero(t, f.resolver.Calls())
}

func TestMetadataFallbackWhenAudioFails(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.resolver.Err = errors.New("blocked")
	f.metadata.Items[youTubeURL] = &model.ContentItem{SourceURL: youTubeURL, Platform: model.PlatformYouTube, IsVideo: true, CaptionText: "  the description  "}

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "the description", result.Transcript)
	assert.Equal(t, model.SourceMetadata, result.Source)
	require.NotEmpty(t, result.Attempts)
	joined := strings.Join(result.Attempts, "\n")
	assert.Contains(t, joined, "captions-extractor")
	assert.Contains(t, joined, "blocked")
}

func TestAllStrategiesFailing(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.metadata.Err = errors.New("scraper down")
	f.resolver.Err = errors.New("blocked")

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, model.ErrExtractionFailed)
	assert.ErrorIs(t, err, cor.ErrAllStrategiesFailed)
	assert.Zero(t, f.store.Count(model.PlatformYouTube, youTubeURL))
}

func TestInvalidRequestIsAValidationError(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	_, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: "https://example.com/video"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NotErrorIs(t, err, model.ErrExtractionFailed)
	assert.Zero(t, f.metadata.Calls())
}

func TestTempFilesRemovedWhenTranscriptionFails(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.transcriber.Err = errors.New("speech api unavailable")

	_, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, f.transcriber.Calls())
	assert.Empty(t, f.tempFiles(t))
}

func TestTempFilesRemovedWhenFfmpegFails(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.config.Extraction.FfmpegPath = test.FailingFfmpeg(t)

	_, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
	assert.Zero(t, f.transcriber.Calls())
	assert.Empty(t, f.tempFiles(t))
}

func TestKnownItemIsNotScrapedAgain(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	item := &model.ContentItem{SourceURL: youTubeURL, Platform: model.PlatformYouTube, IsVideo: true, AuthorHandle: "chan", ViewCount: 42}

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, item)
	require.NoError(t, err)
	assert.Zero(t, f.metadata.Calls())
	assert.Equal(t, model.SourceSpeechToText, result.Source)

	record, found, err := f.store.Lookup(context.Background(), model.PlatformYouTube, youTubeURL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "chan", record.AuthorHandle)
	assert.Equal(t, int64(42), record.ViewCount)
}

func TestHookIsStoredWhenEnabled(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	f.config.Extraction.AnalyzeHooks = true

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Stop scrolling", result.Hook)

	record, _, err := f.store.Lookup(context.Background(), model.PlatformYouTube, youTubeURL)
	require.NoError(t, err)
	assert.Equal(t, "Stop scrolling", record.Hook)
}

type failingWrites struct {
	*services.MemoryStore
}

func (failingWrites) Upsert(context.Context, *model.CacheRecord) error {
	return errors.New("quota exceeded")
}

func TestWriteBackFailureStillReturnsTranscript(t *testing.T) {
	f := newFixture(t, test.MP3Bytes())
	w := workflow.NewExtractionWorkflow(f.config, workflow.ExtractionDeps{
		Store:       failingWrites{f.store},
		WriteMode:   ports.WriteModeUpsert,
		Resolvers:   []ports.MediaResolver{f.resolver},
		Transcriber: f.transcriber,
	})

	result, err := w.Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Transcript)
	assert.Contains(t, strings.Join(result.Attempts, "\n"), "cache-write-back: quota exceeded")
}

func TestNonMediaDownloadFallsThrough(t *testing.T) {
	f := newFixture(t, []byte("<!DOCTYPE html><html><body>login required</body></html>"))
	f.metadata.Items[youTubeURL] = &model.ContentItem{SourceURL: youTubeURL, Platform: model.PlatformYouTube, IsVideo: true, Title: "A title"}

	result, err := f.workflow().Extract(context.Background(), model.ExtractionRequest{URL: youTubeURL}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceMetadata, result.Source)
	assert.Equal(t, "A title", result.Transcript)
	assert.Zero(t, f.transcriber.Calls())
	assert.Empty(t, f.tempFiles(t))
}
