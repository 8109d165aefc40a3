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

// This file defines the profile analyzer.
//
// Logic Flow:
//  1. The recent posts of a handle are scraped in one call.
//  2. Posts outside the day window (and, for reels and YouTube, non-videos)
//     are dropped; the rest are sorted by views and cut to top_n.
//  3. Posts whose record id is already cached are marked known and filled
//     from the cache.
//  4. The first transcribe_top unknown posts are extracted by a fixed pool of
//     workers, one span per job. A failed post only sets the Error of its
//     row; the run as a whole still succeeds.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Extractor runs the extraction of one URL.
type Extractor interface {
	Extract(ctx context.Context, request model.ExtractionRequest, item *model.ContentItem) (*model.ExtractionResult, error)
}

type ProfileAnalyzer struct {
	cor.BaseCommand
	profiles        ports.ProfileSource
	store           ports.CacheStore
	extractor       Extractor
	numberOfWorkers int
	now             func() time.Time
}

func NewProfileAnalyzer(profiles ports.ProfileSource, store ports.CacheStore, extractor Extractor, numberOfWorkers int) *ProfileAnalyzer {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &ProfileAnalyzer{
		BaseCommand:     *cor.NewBaseCommand("profile-analyzer"),
		profiles:        profiles,
		store:           store,
		extractor:       extractor,
		numberOfWorkers: numberOfWorkers,
		now:             time.Now,
	}
}

// SetClock replaces the clock used for the day window.
func (p *ProfileAnalyzer) SetClock(now func() time.Time) {
	p.now = now
}

// Execute reads a *model.ProfileRequest from the input parameter and writes
// the rows to the output parameter.
func (p *ProfileAnalyzer) Execute(context cor.Context) {
	req, ok := context.Get(p.GetInputParam()).(*model.ProfileRequest)
	if !ok {
		p.Fail(context, fmt.Errorf("%w: expected a profile request", model.ErrValidation))
		return
	}
	rows, err := p.Analyze(context.GetContext(), *req)
	if err != nil {
		p.Fail(context, err)
		return
	}
	p.Succeed(context)
	context.Add(p.GetOutputParam(), rows)
}

// Analyze returns one row per selected post, most viewed first.
func (p *ProfileAnalyzer) Analyze(ctx context.Context, req model.ProfileRequest) ([]model.ProfileRow, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	items, err := p.profiles.FetchProfile(ctx, req.Handle, req.Platform, req.ScrapeLimit)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", req.Handle, err)
	}
	selected := SelectTopPosts(items, req, p.now())

	known, err := p.store.KnownIDs(ctx, req.Platform)
	if err != nil {
		slog.Warn("known ids unavailable; treating every post as new", "handle", req.Handle, "error", err)
		known = map[string]bool{}
	}

	rows := make([]model.ProfileRow, len(selected))
	var pending []int
	for i, item := range selected {
		rows[i].Item = item
		if known[model.RecordID(item.SourceURL)] {
			rows[i].Known = true
			p.fillFromCache(ctx, req.Platform, &rows[i])
			continue
		}
		if len(pending) < req.TranscribeTop {
			pending = append(pending, i)
		}
	}
	p.extractAll(ctx, req.Platform, rows, pending)
	return rows, nil
}

func (p *ProfileAnalyzer) fillFromCache(ctx context.Context, platform model.Platform, row *model.ProfileRow) {
	record, found, err := p.store.Lookup(ctx, platform, row.Item.SourceURL)
	switch {
	case err != nil:
		row.Error = err.Error()
	case found:
		row.Transcript = record.Transcript
		row.Hook = record.Hook
		row.Source = model.SourceCache
	}
}

type profileJob struct {
	index int
	item  model.ContentItem
}

type profileResult struct {
	index  int
	result *model.ExtractionResult
	err    error
}

func (p *ProfileAnalyzer) extractAll(ctx context.Context, platform model.Platform, rows []model.ProfileRow, pending []int) {
	if len(pending) == 0 {
		return
	}
	jobs := make(chan profileJob, len(pending))
	results := make(chan profileResult, len(pending))

	var wg sync.WaitGroup
	for w := 0; w < min(p.numberOfWorkers, len(pending)); w++ {
		wg.Add(1)
		go p.worker(ctx, platform, jobs, results, &wg)
	}
	for _, i := range pending {
		jobs <- profileJob{index: i, item: rows[i].Item}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		row := &rows[r.index]
		if r.err != nil {
			p.GetErrorCounter().Add(ctx, 1)
			row.Error = r.err.Error()
			continue
		}
		p.GetSuccessCounter().Add(ctx, 1)
		row.Transcript = r.result.Transcript
		row.Source = r.result.Source
		row.Hook = r.result.Hook
	}
}

func (p *ProfileAnalyzer) worker(ctx context.Context, platform model.Platform, jobs <-chan profileJob, results chan<- profileResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		jobCtx, span := p.Tracer.Start(ctx, fmt.Sprintf("%s_extract_%d", p.GetName(), job.index))
		span.SetAttributes(
			attribute.Int("sequence", job.index),
			attribute.String("url", job.item.SourceURL),
		)
		item := job.item
		request := model.ExtractionRequest{URL: item.SourceURL, Platform: platform}
		if item.Platform.Valid() {
			request.Platform = item.Platform
		}
		result, err := p.extractor.Extract(jobCtx, request, &item)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "extracted")
		}
		span.End()
		results <- profileResult{index: job.index, result: result, err: err}
	}
}

// SelectTopPosts applies the day window and video filter, then keeps the
// top_n most viewed posts.
func SelectTopPosts(items []model.ContentItem, req model.ProfileRequest, now time.Time) []model.ContentItem {
	cutoff := now.AddDate(0, 0, -req.Days)
	out := make([]model.ContentItem, 0, len(items))
	for _, item := range items {
		if item.SourceURL == "" || item.PostedAt.IsZero() || item.PostedAt.Before(cutoff) {
			continue
		}
		if req.Platform != model.PlatformInstagramCarousel && !item.IsVideo {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ViewCount > out[j].ViewCount })
	if len(out) > req.TopN {
		out = out[:req.TopN]
	}
	return out
}
