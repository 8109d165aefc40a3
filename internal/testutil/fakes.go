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

package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// MetadataSource returns canned items keyed by source URL.
type MetadataSource struct {
	mu    sync.Mutex
	Items map[string]*model.ContentItem
	Err   error
	calls int
}

func (f *MetadataSource) FetchItem(_ context.Context, sourceURL string, _ model.Platform) (*model.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	item, ok := f.Items[sourceURL]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *item
	return &out, nil
}

func (f *MetadataSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ProfileSource returns a fixed post list.
type ProfileSource struct {
	Items []model.ContentItem
	Err   error
}

func (f *ProfileSource) FetchProfile(_ context.Context, _ string, _ model.Platform, _ int) ([]model.ContentItem, error) {
	return f.Items, f.Err
}

// Resolver hands out a fixed media URL.
type Resolver struct {
	mu        sync.Mutex
	NameValue string
	URL       string
	Err       error
	calls     int
}

func (f *Resolver) Name() string {
	if f.NameValue == "" {
		return "fake"
	}
	return f.NameValue
}

func (f *Resolver) Resolve(context.Context, string, *model.ContentItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.URL, f.Err
}

func (f *Resolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Transcriber returns Text for every file it is given. With Block set it
// waits for ctx instead and reports the context error as a transient one.
type Transcriber struct {
	mu    sync.Mutex
	Text  string
	Err   error
	Block bool
	calls int
	paths []string
}

func (f *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.paths = append(f.paths, audioPath)
	text, err, block := f.Text, f.Err, f.Block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", model.ErrTransient, ctx.Err())
	}
	return text, err
}

func (f *Transcriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Paths returns the audio files submitted so far.
func (f *Transcriber) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// Generator replays Responses (and Errs) in order; the last entry repeats.
type Generator struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	prompts   []string
	systems   []string
}

func (f *Generator) Generate(_ context.Context, system string, prompt string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
	var err error
	if len(f.Errs) > 0 {
		err = f.Errs[min(i, len(f.Errs)-1)]
	}
	if err != nil {
		return "", err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	return f.Responses[min(i, len(f.Responses)-1)], nil
}

func (f *Generator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// Prompts returns the rendered prompts received so far.
func (f *Generator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// HookAnalyst returns a fixed hook.
type HookAnalyst struct {
	Hook string
	Err  error
}

func (f *HookAnalyst) AnalyzeHook(context.Context, string) (string, error) {
	return f.Hook, f.Err
}

// Archive records uploads without touching Cloud Storage.
type Archive struct {
	mu       sync.Mutex
	Disabled bool
	Err      error
	uploads  []string
}

func (f *Archive) Enabled() bool { return !f.Disabled }

func (f *Archive) Upload(_ context.Context, sourceURL string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.uploads = append(f.uploads, sourceURL)
	return "gs://archive/" + model.RecordID(sourceURL) + ".mp3", nil
}

func (f *Archive) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}
