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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reelURL = "https://www.instagram.com/reel/C1a2b3c4d5/"

type harness struct {
	app       *app.App
	router    *gin.Engine
	metadata  *test.MetadataSource
	generator *test.Generator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := test.GetConfig()
	config.Extraction.TempDir = t.TempDir()
	config.Extraction.FfmpegPath = test.FakeFfmpeg(t)

	h := &harness{
		metadata:  &test.MetadataSource{Items: map[string]*model.ContentItem{}},
		generator: &test.Generator{Responses: []string{`[{"title":"Copy the cold open"}]`}},
	}
	store := services.NewMemoryStore()
	extraction := workflow.NewExtractionWorkflow(config, workflow.ExtractionDeps{
		Store:       store,
		WriteMode:   ports.WriteModeUpsert,
		Sources:     []ports.MetadataSource{h.metadata},
		Resolvers:   []ports.MediaResolver{&test.Resolver{Err: errors.New("no media")}},
		Transcriber: &test.Transcriber{Text: "spoken words"},
	})
	extraction.SetMediaBackoff(func(int) time.Duration { return 0 })
	generation, err := services.NewGenerationService(config, h.generator, nil, nil)
	require.NoError(t, err)
	generation.SetBackoff(0)

	h.app = &app.App{
		Config:     config,
		Store:      store,
		WriteMode:  ports.WriteModeUpsert,
		Archive:    &services.ArchiveService{},
		Generation: generation,
		Extraction: extraction,
		Uploads:    workflow.NewUploadTranscriptionWorkflow(config, nil, &test.Transcriber{Text: "uploaded words"}),
		Profiles:   workflow.NewProfileAnalyzer(&test.ProfileSource{}, store, extraction, 2),
	}
	h.router = NewRouter(h.app)
	return h
}

func (h *harness) do(method string, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestExtractionRoutes(t *testing.T) {
	h := newHarness(t)
	h.metadata.Items[strings.TrimSuffix(reelURL, "/")] = &model.ContentItem{
		Platform:  model.PlatformInstagramReel,
		IsVideo:   true,
		Subtitles: strings.Repeat("captions that are long enough to use. ", 2),
	}

	rec := h.do(http.MethodGet, "/api/v1/extractions?url="+reelURL, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "not found")

	rec = h.do(http.MethodPost, "/api/v1/extractions", gin.H{"url": reelURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[model.ExtractionResult](t, rec)
	assert.Equal(t, model.SourceCaptions, result.Source)
	assert.False(t, result.CacheHit)

	rec = h.do(http.MethodGet, "/api/v1/extractions?url="+reelURL+"&platform=reel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decode[model.CacheRecord](t, rec)
	assert.Equal(t, result.Transcript, record.Transcript)
}

func TestExtractionErrorStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/extractions", gin.H{"url": "https://vimeo.com/1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/extractions", gin.H{"url": reelURL})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "extraction failed")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	h.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestArchivedAudioWithoutArchive(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/extractions/audio?url="+reelURL, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIdeasRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/ideas", gin.H{"transcript": "the transcript", "mode": "sales"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Mode  string              `json:"mode"`
		Ideas []model.ContentIdea `json:"ideas"`
	}](t, rec)
	assert.Equal(t, "sales", body.Mode)
	require.Len(t, body.Ideas, 1)
	assert.Equal(t, "Copy the cold open", body.Ideas[0].Title)

	rec = h.do(http.MethodPost, "/api/v1/ideas", gin.H{"transcript": "x", "mode": "poetry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.generator.Responses = []string{"nope"}
	rec = h.do(http.MethodPost, "/api/v1/ideas", gin.H{"transcript": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	h.app.Generation = nil
	rec = h.do(http.MethodPost, "/api/v1/ideas", gin.H{"transcript": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTrendRoutes(t *testing.T) {
	h := newHarness(t)
	h.generator.Responses = []string{`[{"title":"New phone launch","hype":"everyone is talking","hook":"Skip it"}]`}

	rec := h.do(http.MethodPost, "/api/v1/trends", gin.H{"niche": "tech"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/trends", gin.H{"window": "today"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.generator.Responses = []string{"Open on the box."}
	rec = h.do(http.MethodPost, "/api/v1/trends/script", gin.H{"trend": gin.H{"title": "New phone launch"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Open on the box.", decode[map[string]string](t, rec)["script"])
}

func TestCarouselRoute(t *testing.T) {
	h := newHarness(t)
	h.generator.Responses = []string{`{"slides":[{"panel_number":1,"text":"Hook"},{"panel_number":2,"text":"Payoff"}]}`}

	rec := h.do(http.MethodPost, "/api/v1/carousels", gin.H{"idea": gin.H{"title": "Focus"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	script := decode[model.CarouselScript](t, rec)
	assert.Len(t, script.Slides, 2)

	rec = h.do(http.MethodPost, "/api/v1/carousels", gin.H{"idea": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/v1/profiles/analyze", gin.H{"handle": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/profiles/analyze", gin.H{"handle": "@coach", "platform": "reel"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTranscriptionUpload(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "voice-note.mp3")
	require.NoError(t, err)
	_, err = part.Write(test.MP3Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	transcript := decode[model.Transcript](t, rec)
	assert.Equal(t, "uploaded words", transcript.Text)
	assert.Equal(t, model.SourceUpload, transcript.Source)

	rec = h.do(http.MethodPost, "/api/v1/transcriptions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		model.NewValidationError("url", "required"):              http.StatusBadRequest,
		fmt.Errorf("%w: gone", model.ErrNotFound):                http.StatusNotFound,
		fmt.Errorf("%w: x", model.ErrExtractionFailed):           http.StatusUnprocessableEntity,
		fmt.Errorf("%w: ideas: boom", model.ErrGenerationFailed): http.StatusUnprocessableEntity,
		app.ErrGenerationUnavailable:                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusOf(err), err.Error())
	}
}

func TestStatsRoute(t *testing.T) {
	h := newHarness(t)
	h.metadata.Items[strings.TrimSuffix(reelURL, "/")] = &model.ContentItem{
		Platform:  model.PlatformInstagramReel,
		IsVideo:   true,
		Subtitles: strings.Repeat("captions that are long enough to use. ", 2),
	}
	rec := h.do(http.MethodPost, "/api/v1/extractions", gin.H{"url": reelURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[Stats](t, rec)
	assert.Equal(t, map[string]int{"youtube": 0, "instagram": 1}, stats.CachedRecords)
	assert.True(t, stats.GenerationEnabled)
	assert.False(t, stats.ArchiveEnabled)
	assert.Equal(t, "upsert", stats.WriteMode)
}
