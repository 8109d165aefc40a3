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

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Template names, matching the keys of [prompt_templates].
const (
	TemplateIdeasViral  = "ideas_viral"
	TemplateIdeasSales  = "ideas_sales"
	TemplateCarousel    = "carousel"
	TemplateHooks       = "hooks"
	TemplateTrends      = "trends"
	TemplateTrendScript = "trend_script"
)

// Used when a template is missing from configuration.
var defaultTemplates = map[string]string{
	TemplateIdeasViral: "Study the structure of the transcript below and propose 5 new content ideas that reuse its viral pattern. " +
		"Answer with a JSON array of objects with the keys title, structural_pattern and rationale.\n\nTRANSCRIPT:\n{{.Transcript}}",
	TemplateIdeasSales: "Study the transcript below and propose 5 content ideas that turn its pattern into a sales pitch. " +
		"Answer with a JSON array of objects with the keys title, structural_pattern and rationale.\n\nTRANSCRIPT:\n{{.Transcript}}",
	TemplateCarousel: "Write an Instagram carousel script for the idea \"{{.Idea.Title}}\" ({{.Idea.StructuralPattern}}). " +
		"Answer with a JSON object {\"meta\":{\"complexity\",\"total_slides\",\"theme\"},\"slides\":[{\"panel_number\",\"phase\",\"text\",\"design_note\"}]}." +
		"{{if .Transcript}}\n\nREFERENCE TRANSCRIPT:\n{{.Transcript}}{{end}}",
	TemplateHooks: "Identify the verbal hook used in the first seconds of this transcript. " +
		"Answer with a JSON object {\"verbal_hook\": \"...\"}.\n\nTRANSCRIPT:\n{{.Transcript}}",
	TemplateTrends: "List 5 trending topics in the niche \"{{.Request.Niche}}\" for the {{.Request.Window}} that a creator could newsjack. " +
		"Answer with a JSON array of objects with the keys title, hype and hook.{{if .Request.Notes}}\n\nNOTES: {{.Request.Notes}}{{end}}",
	TemplateTrendScript: "Write a short video script in a {{or .Request.Tone \"direct\"}} tone about \"{{.Trend.Title}}\". " +
		"Why it is hot: {{.Trend.Hype}}. Opening hook: {{.Trend.Hook}}.",
}

// PromptData is the value every prompt template is executed against.
type PromptData struct {
	Transcript string
	Mode       model.IdeaMode
	Idea       *model.ContentIdea
	Trend      *model.TrendIdea
	Request    *model.TrendRequest
}

// GenerationService turns transcripts into ideas, carousel scripts, hooks and
// trend content. Every call is bounded: at most maxAttempts requests are sent
// and failures surface as model.ErrGenerationFailed.
type GenerationService struct {
	generator        ports.TextGenerator
	trendGenerator   ports.TextGenerator
	scriptGenerator  ports.TextGenerator
	templates        *template.Template
	system           string
	transcriptBudget int
	hookBudget       int
	maxAttempts      int
	backoff          time.Duration
	tracer           trace.Tracer
	retryCounter     metric.Int64Counter
	failureCounter   metric.Int64Counter
}

// NewGenerationService parses the prompt templates of config. trends and
// scripts may be nil, in which case generator serves them too.
func NewGenerationService(config *cloud.Config, generator ports.TextGenerator, trends ports.TextGenerator, scripts ports.TextGenerator) (*GenerationService, error) {
	if generator == nil {
		return nil, errors.New("generation service requires a text generator")
	}
	if trends == nil {
		trends = generator
	}
	if scripts == nil {
		scripts = generator
	}
	configured := map[string]string{
		TemplateIdeasViral:  config.PromptTemplates.IdeasViral,
		TemplateIdeasSales:  config.PromptTemplates.IdeasSales,
		TemplateCarousel:    config.PromptTemplates.Carousel,
		TemplateHooks:       config.PromptTemplates.Hooks,
		TemplateTrends:      config.PromptTemplates.Trends,
		TemplateTrendScript: config.PromptTemplates.TrendScript,
	}
	root := template.New("prompts")
	for name, fallback := range defaultTemplates {
		text := configured[name]
		if strings.TrimSpace(text) == "" {
			text = fallback
		}
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
	}

	meter := otel.Meter(cor.MeterName)
	retries, _ := meter.Int64Counter("generation.counter.retry")
	failures, _ := meter.Int64Counter("generation.counter.error")

	out := &GenerationService{
		generator:        generator,
		trendGenerator:   trends,
		scriptGenerator:  scripts,
		templates:        root,
		system:           config.PromptTemplates.System,
		transcriptBudget: config.Generation.TranscriptBudget,
		hookBudget:       config.Generation.HookTranscriptBudget,
		maxAttempts:      config.Generation.MaxAttempts,
		backoff:          time.Second,
		tracer:           otel.Tracer("generation-service"),
		retryCounter:     retries,
		failureCounter:   failures,
	}
	if out.maxAttempts <= 0 {
		out.maxAttempts = 2
	}
	return out, nil
}

// SetBackoff changes the pause between attempts.
func (s *GenerationService) SetBackoff(backoff time.Duration) {
	s.backoff = backoff
}

// GenerateIdeas proposes ideas modelled on the structure of transcript.
func (s *GenerationService) GenerateIdeas(ctx context.Context, transcript string, mode model.IdeaMode) (model.ContentIdeas, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, model.NewValidationError("transcript", "required")
	}
	name := TemplateIdeasViral
	if mode == model.IdeaModeSales {
		name = TemplateIdeasSales
	}
	data := PromptData{Transcript: cloud.Truncate(transcript, s.transcriptBudget), Mode: mode}
	return generate(ctx, s, s.generator, name, data, true, func(text string) (model.ContentIdeas, error) {
		var ideas model.ContentIdeas
		if err := decodeList(text, &ideas); err != nil {
			return nil, err
		}
		return ideas, ideas.Validate()
	})
}

// GenerateCarousel writes a carousel script for idea. The transcript is
// optional reference material.
func (s *GenerationService) GenerateCarousel(ctx context.Context, idea model.ContentIdea, transcript string) (*model.CarouselScript, error) {
	if err := idea.Validate(); err != nil {
		return nil, err
	}
	data := PromptData{Transcript: cloud.Truncate(transcript, s.transcriptBudget), Idea: &idea}
	return generate(ctx, s, s.generator, TemplateCarousel, data, true, func(text string) (*model.CarouselScript, error) {
		script := &model.CarouselScript{}
		if err := json.Unmarshal([]byte(text), script); err != nil {
			return nil, err
		}
		return script, script.Validate()
	})
}

// AnalyzeHook extracts the verbal hook of a transcript.
func (s *GenerationService) AnalyzeHook(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", model.NewValidationError("transcript", "required")
	}
	data := PromptData{Transcript: cloud.Truncate(transcript, s.hookBudget)}
	hook, err := generate(ctx, s, s.generator, TemplateHooks, data, true, func(text string) (*model.HookAnalysis, error) {
		hook := &model.HookAnalysis{}
		if err := json.Unmarshal([]byte(text), hook); err != nil {
			return nil, err
		}
		return hook, hook.Validate()
	})
	if err != nil {
		return "", err
	}
	return hook.VerbalHook, nil
}

// GenerateTrends lists topical pitches for a niche.
func (s *GenerationService) GenerateTrends(ctx context.Context, request model.TrendRequest) (model.TrendIdeas, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return generate(ctx, s, s.trendGenerator, TemplateTrends, PromptData{Request: &request}, true, func(text string) (model.TrendIdeas, error) {
		var trends model.TrendIdeas
		if err := decodeList(text, &trends); err != nil {
			return nil, err
		}
		return trends, trends.Validate()
	})
}

// WriteTrendScript writes a plain text script for one trend.
func (s *GenerationService) WriteTrendScript(ctx context.Context, trend model.TrendIdea, request model.TrendRequest) (string, error) {
	if strings.TrimSpace(trend.Title) == "" {
		return "", model.NewValidationError("trend.title", "required")
	}
	if request.Niche == "" {
		request.Niche = trend.Title
	}
	if err := request.Validate(); err != nil {
		return "", err
	}
	data := PromptData{Trend: &trend, Request: &request}
	return generate(ctx, s, s.scriptGenerator, TemplateTrendScript, data, false, func(text string) (string, error) {
		return text, nil
	})
}

func (s *GenerationService) render(name string, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// generate renders a prompt, calls gen and decodes the cleaned answer. It
// retries transient errors, empty answers and malformed documents until
// maxAttempts is reached.
func generate[T any](ctx context.Context, s *GenerationService, gen ports.TextGenerator, name string, data PromptData, jsonOutput bool, decode func(string) (T, error)) (T, error) {
	var zero T
	ctx, span := s.tracer.Start(ctx, "generate-"+name)
	defer span.End()

	prompt, err := s.render(name, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.retryCounter.Add(ctx, 1)
			if err := sleepContext(ctx, s.backoff); err != nil {
				lastErr = err
				break
			}
		}
		span.SetAttributes(attribute.Int("attempts", attempt))

		raw, err := gen.Generate(ctx, s.system, prompt, jsonOutput)
		if err != nil {
			lastErr = err
			slog.Warn("generation request failed", "template", name, "attempt", attempt, "error", err)
			if !IsRetriable(err) {
				break
			}
			continue
		}
		text := cloud.CleanJSON(raw)
		if text == "" {
			lastErr = errors.New("empty completion")
			slog.Warn("generation returned an empty completion", "template", name, "attempt", attempt)
			continue
		}
		out, err := decode(text)
		if err != nil {
			lastErr = fmt.Errorf("malformed completion: %w", err)
			slog.Warn("generation returned a malformed completion", "template", name, "attempt", attempt, "error", err)
			continue
		}
		span.SetStatus(codes.Ok, "success")
		return out, nil
	}

	s.failureCounter.Add(ctx, 1)
	span.SetStatus(codes.Error, fmt.Sprint(lastErr))
	return zero, fmt.Errorf("%w: %s: %w", model.ErrGenerationFailed, name, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeList accepts a top-level JSON array, or an object whose only array
// member holds the list (e.g. {"ideas": [...]}).
func decodeList(text string, target any) error {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal([]byte(trimmed), target)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
		return err
	}
	var found json.RawMessage
	for _, value := range wrapper {
		if v := bytes.TrimSpace(value); len(v) > 0 && v[0] == '[' {
			if found != nil {
				return errors.New("object wraps more than one array")
			}
			found = v
		}
	}
	if found == nil {
		return errors.New("no array in completion")
	}
	return json.Unmarshal(found, target)
}
