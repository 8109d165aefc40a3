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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoURL = "https://www.youtube.com/watch?v=abc123"
	longText = "captions that are long enough for the captions strategy to win."
)

type cliEnv struct {
	app       *app.App
	metadata  *test.MetadataSource
	generator *test.Generator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	test.SetupOS(t)
	config := test.GetConfig()
	config.Extraction.TempDir = t.TempDir()
	config.Extraction.FfmpegPath = test.FakeFfmpeg(t)

	env := &cliEnv{
		metadata: &test.MetadataSource{Items: map[string]*model.ContentItem{
			videoURL: {Platform: model.PlatformYouTube, IsVideo: true, Subtitles: longText},
		}},
		generator: &test.Generator{},
	}
	store := services.NewMemoryStore()
	extraction := workflow.NewExtractionWorkflow(config, workflow.ExtractionDeps{
		Store:       store,
		WriteMode:   ports.WriteModeUpsert,
		Sources:     []ports.MetadataSource{env.metadata},
		Resolvers:   []ports.MediaResolver{&test.Resolver{Err: errors.New("no media")}},
		Transcriber: &test.Transcriber{Text: "spoken words"},
	})
	extraction.SetMediaBackoff(func(int) time.Duration { return 0 })
	generation, err := services.NewGenerationService(config, env.generator, nil, nil)
	require.NoError(t, err)
	generation.SetBackoff(0)

	env.app = &app.App{
		Config:     config,
		Store:      store,
		WriteMode:  ports.WriteModeUpsert,
		Archive:    &services.ArchiveService{},
		Generation: generation,
		Extraction: extraction,
		Uploads:    workflow.NewUploadTranscriptionWorkflow(config, nil, &test.Transcriber{Text: "uploaded words"}),
		Profiles:   workflow.NewProfileAnalyzer(&test.ProfileSource{}, store, extraction, 2),
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cc := newCommandContext()
	cc.newApp = func(context.Context, *cloud.Config) (*app.App, error) { return e.app, nil }
	cmd := newRootCommandWith(cc)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtractCommandTable(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "extract", videoURL)
	require.NoError(t, err)
	assert.Contains(t, out, "captions")
	assert.Contains(t, out, "Transcript")

	_, found, err := env.app.Store.Lookup(context.Background(), model.PlatformYouTube, videoURL)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestExtractCommandScopesErrors(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "--json", "extract", videoURL, "https://vimeo.com/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	var rows []extractRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Result)
	assert.Equal(t, model.SourceCaptions, rows[0].Result.Source)
	assert.Empty(t, rows[0].Error)
	assert.Nil(t, rows[1].Result)
	assert.Contains(t, rows[1].Error, "unsupported host")
}

func TestLookupCommand(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "lookup", videoURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = env.run(t, "extract", videoURL)
	require.NoError(t, err)

	out, err := env.run(t, "--json", "lookup", videoURL)
	require.NoError(t, err)
	var record model.CacheRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, longText, record.Transcript)
	assert.Equal(t, model.RecordID(videoURL), record.Id)
}

func TestIdeasCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.generator.Responses = []string{"```json\n[{\"titulo\":\"Steal the hook\"}]\n```"}

	file := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(file, []byte("a transcript\n"), 0o600))

	out, err := env.run(t, "ideas", "--transcript-file", file, "--mode", "vendas")
	require.NoError(t, err)
	assert.Contains(t, out, "Steal the hook")
	assert.Equal(t, 1, env.generator.Calls())

	_, err = env.run(t, "ideas")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.run(t, "ideas", "--mode", "boring", "--transcript-file", file)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestIdeasCommandFromURL(t *testing.T) {
	env := newCLIEnv(t)
	env.generator.Responses = []string{`{"ideas":[{"title":"One"},{"title":"Two"}]}`}

	out, err := env.run(t, "--json", "ideas", "--url", videoURL)
	require.NoError(t, err)
	var ideas model.ContentIdeas
	require.NoError(t, json.Unmarshal([]byte(out), &ideas))
	assert.Len(t, ideas, 2)
	assert.Contains(t, env.generator.Prompts()[0], longText)
}

func TestTrendsCommandWithScript(t *testing.T) {
	env := newCLIEnv(t)
	env.generator.Responses = []string{
		`[{"title":"AI agents","hype":"high","hook":"Everyone is wrong"}]`,
		"Open with the headline.",
	}

	out, err := env.run(t, "trends", "--niche", "tech", "--script", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "AI agents")
	assert.Contains(t, out, "Open with the headline.")

	_, err = env.run(t, "trends")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestGenerationUnavailable(t *testing.T) {
	env := newCLIEnv(t)
	env.app.Generation = nil

	_, err := env.run(t, "trends", "--niche", "tech")
	assert.ErrorIs(t, err, app.ErrGenerationUnavailable)
}

func TestTranscribeCommand(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "voice.mp3")
	require.NoError(t, os.WriteFile(file, test.MP3Bytes(), 0o600))

	out, err := env.run(t, "transcribe", file)
	require.NoError(t, err)
	assert.Equal(t, "uploaded words", strings.TrimSpace(out))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"Name", "Count"}, [][]string{{"a", "1"}, {"b"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Count")
	assert.Equal(t, 5, strings.Count(out, "\n"), out)
	assert.Empty(t, renderTable(&buf, nil, nil, nil))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "çãé…", preview("çãéíó", 3))
}
