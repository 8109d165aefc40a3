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
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func reel(code string, views int64, age time.Duration, video bool) model.ContentItem {
	return model.ContentItem{
		SourceURL:    "https://www.instagram.com/reel/" + code,
		Platform:     model.PlatformInstagramReel,
		ExternalID:   code,
		AuthorHandle: "creator",
		PostedAt:     now.Add(-age),
		ViewCount:    views,
		IsVideo:      video,
	}
}

type recordingExtractor struct {
	mu   sync.Mutex
	urls []string
	fail map[string]bool
}

func (r *recordingExtractor) Extract(_ context.Context, req model.ExtractionRequest, item *model.ContentItem) (*model.ExtractionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, req.URL)
	if r.fail[req.URL] {
		return nil, fmt.Errorf("%w: %s", model.ErrExtractionFailed, req.URL)
	}
	return &model.ExtractionResult{SourceURL: req.URL, Transcript: "transcript of " + item.ExternalID, Source: model.SourceSpeechToText, Hook: model.NoHook}, nil
}

func TestSelectTopPosts(t *testing.T) {
	day := 24 * time.Hour
	items := []model.ContentItem{
		reel("old", 900, 40*day, true),
		reel("photo", 800, day, false),
		reel("a", 100, day, true),
		reel("b", 300, 2*day, true),
		reel("c", 200, 3*day, true),
		{SourceURL: "https://www.instagram.com/reel/nodate", IsVideo: true, ViewCount: 1000},
	}
	got := workflow.SelectTopPosts(items, model.ProfileRequest{Platform: model.PlatformInstagramReel, Days: 30, TopN: 2}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ExternalID)
	assert.Equal(t, "c", got[1].ExternalID)
}

func TestProfileAnalyzerSkipsKnownAndScopesErrors(t *testing.T) {
	day := 24 * time.Hour
	store := services.NewMemoryStore()
	known := reel("known", 500, day, true)
	require.NoError(t, store.Upsert(context.Background(), model.NewCacheRecord(known.SourceURL, model.PlatformInstagramReel, &known,
		model.Transcript{SourceURL: known.SourceURL, Text: "cached text", Source: model.SourceCaptions}, "cached hook")))

	items := []model.ContentItem{
		known,
		reel("a", 400, day, true),
		reel("b", 300, day, true),
		reel("c", 200, day, true),
		reel("d", 100, day, true),
	}
	extractor := &recordingExtractor{fail: map[string]bool{items[2].SourceURL: true}}
	analyzer := workflow.NewProfileAnalyzer(&test.ProfileSource{Items: items}, store, extractor, 2)
	analyzer.SetClock(func() time.Time { return now })

	rows, err := analyzer.Analyze(context.Background(), model.ProfileRequest{
		Handle: "@creator", Platform: model.PlatformInstagramReel, Days: 30, TopN: 4, TranscribeTop: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.True(t, rows[0].Known)
	assert.Equal(t, "cached text", rows[0].Transcript)
	assert.Equal(t, "cached hook", rows[0].Hook)
	assert.Equal(t, model.SourceCache, rows[0].Source)

	assert.Equal(t, "transcript of a", rows[1].Transcript)
	assert.Empty(t, rows[1].Error)

	assert.Empty(t, rows[2].Transcript)
	assert.Contains(t, rows[2].Error, "extraction failed")

	assert.Empty(t, rows[3].Transcript, "beyond transcribe_top")
	assert.Empty(t, rows[3].Error)

	assert.ElementsMatch(t, []string{items[1].SourceURL, items[2].SourceURL}, extractor.urls)
}

func TestProfileAnalyzerPropagatesScrapeFailure(t *testing.T) {
	analyzer := workflow.NewProfileAnalyzer(&test.ProfileSource{Err: errors.New("actor timed out")}, services.NewMemoryStore(), &recordingExtractor{}, 2)
	_, err := analyzer.Analyze(context.Background(), model.ProfileRequest{Handle: "creator"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor timed out")
}

func TestProfileAnalyzerRejectsEmptyHandle(t *testing.T) {
	analyzer := workflow.NewProfileAnalyzer(&test.ProfileSource{}, services.NewMemoryStore(), &recordingExtractor{}, 2)
	_, err := analyzer.Analyze(context.Background(), model.ProfileRequest{Handle: " @ "})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestProfileAnalyzerYouTubeChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": "v1", "url": "https://www.youtube.com/watch?v=v1", "title": "First", "channelName": "editor", "viewCount": "1500", "date": "2025-02-27T10:00:00Z"},
			{"id": "v2", "url": "https://www.youtube.com/watch?v=v2", "title": "Second", "channelName": "editor", "viewCount": 9000, "date": "2025-02-20T10:00:00Z"}
		]`))
	}))
	defer server.Close()
	scraper := cloud.NewScraperClient(cloud.Scraper{
		BaseURL:           server.URL,
		Token:             "token",
		YouTubeActor:      "yt~scraper",
		RequestsPerSecond: 100,
		TimeoutSeconds:    5,
	})

	extractor := &recordingExtractor{}
	analyzer := workflow.NewProfileAnalyzer(scraper, services.NewMemoryStore(), extractor, 2)
	analyzer.SetClock(func() time.Time { return now })

	rows, err := analyzer.Analyze(context.Background(), model.ProfileRequest{
		Handle: "editor", Platform: model.PlatformYouTube, Days: 30, TopN: 10, TranscribeTop: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=v2", rows[0].Item.SourceURL)
	assert.Equal(t, "transcript of v2", rows[0].Transcript)
	assert.Equal(t, "transcript of v1", rows[1].Transcript)
	assert.Len(t, extractor.urls, 2)
}
