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

// This file holds the text generator adapters. Each one satisfies
// ports.TextGenerator so the generation service can switch providers from
// configuration.
//
// Structs:
//   - GeminiGenerator: Vertex AI Gemini through QuotaAwareGenerativeAIModel.
//   - GroqClient: OpenAI compatible chat completions and Whisper transcription.
//   - AnthropicGenerator: Anthropic messages API.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const generatorMeterName = "github.com/jaycherian/gcp-go-content-extractor/cloud"

// ClassifyStatus marks rate limiting, server side failures and network
// timeouts as model.ErrTransient so callers can decide to retry.
func ClassifyStatus(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	return err
}

// GeminiGenerator sends prompts to a configured Gemini agent model.
type GeminiGenerator struct {
	model        *QuotaAwareGenerativeAIModel
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	retries      metric.Int64Counter
}

func NewGeminiGenerator(model *QuotaAwareGenerativeAIModel) *GeminiGenerator {
	meter := otel.Meter(generatorMeterName)
	in, _ := meter.Int64Counter("gemini.tokens.input")
	out, _ := meter.Int64Counter("gemini.tokens.output")
	retries, _ := meter.Int64Counter("gemini.retries")
	return &GeminiGenerator{model: model, inputTokens: in, outputTokens: out, retries: retries}
}

func (g *GeminiGenerator) Generate(ctx context.Context, system string, prompt string, jsonOutput bool) (string, error) {
	agent := g.model.WithResponseMIMEType("text/plain")
	if jsonOutput {
		agent = g.model.WithResponseMIMEType("application/json")
	}
	out, err := GenerateMultiModalResponse(ctx, g.inputTokens, g.outputTokens, g.retries, agent, system, NewTextPart(prompt))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", ClassifyStatus(apiErr.Code, err)
		}
		return "", ClassifyStatus(0, err)
	}
	return out, nil
}

// GroqClient talks to an OpenAI compatible endpoint. It serves both as the
// speech-to-text Transcriber and as a TextGenerator.
type GroqClient struct {
	client      openai.Client
	chatModel   string
	audioModel  string
	language    string
	temperature float64
	limiter     *rate.Limiter
}

func newOpenAIClient(apiKey string, baseURL string) openai.Client {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	return openai.NewClient(opts...)
}

// NewGroqClient builds the client from the chat and speech sections. The
// speech section may point at a different endpoint or key.
func NewGroqClient(llm GroqLLM, speech Speech) *GroqClient {
	apiKey := speech.APIKey
	if apiKey == "" {
		apiKey = llm.APIKey
	}
	baseURL := speech.BaseURL
	if baseURL == "" {
		baseURL = llm.BaseURL
	}
	rps := llm.RateLimit
	if rps <= 0 {
		rps = 1
	}
	return &GroqClient{
		client:      newOpenAIClient(apiKey, baseURL),
		chatModel:   llm.Model,
		audioModel:  speech.Model,
		language:    speech.Language,
		temperature: llm.Temperature,
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Transcribe uploads audioPath and returns the recognised text.
func (g *GroqClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(g.audioModel),
	}
	if g.language != "" {
		params.Language = openai.String(g.language)
	}
	start := time.Now()
	res, err := g.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	slog.Debug("transcription complete", "model", g.audioModel, "elapsed", time.Since(start))
	return strings.TrimSpace(res.Text), nil
}

func (g *GroqClient) Generate(ctx context.Context, system string, prompt string, jsonOutput bool) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.chatModel),
		Messages:    messages,
		Temperature: openai.Float(g.temperature),
	}
	if jsonOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return CleanJSON(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ClassifyStatus(apiErr.StatusCode, err)
	}
	return ClassifyStatus(0, err)
}

// AnthropicGenerator sends prompts to the Anthropic messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicGenerator(config Anthropic) *AnthropicGenerator {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(config.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(config.BaseURL, "/")))
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicGenerator{client: anthropic.NewClient(opts...), model: config.Model, maxTokens: maxTokens}
}

// Generate ignores jsonOutput; the prompt templates already ask for JSON.
func (a *AnthropicGenerator) Generate(ctx context.Context, system string, prompt string, _ bool) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", ClassifyStatus(apiErr.StatusCode, err)
		}
		return "", ClassifyStatus(0, err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return CleanJSON(sb.String()), nil
}
