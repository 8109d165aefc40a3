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

// This file contains general-purpose helpers for the cloud package:
// hierarchical configuration loading, environment overrides, Gemini
// response handling and the text cleanup shared by every generator.
//
// Functions:
//   - LoadConfig: reads configs/.env.toml then the runtime specific
//     .env.<runtime>.toml on top of it.
//   - ApplyEnvOverrides: replaces credentials and DSNs from the environment.
//   - GenerateMultiModalResponse: calls a Gemini model with retries and token
//     metrics.
//   - CleanJSON: strips code fences from model output.
//   - Truncate: rune-safe prefix.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/metric"

	"github.com/BurntSushi/toml"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // Directory holding the config files.
	EnvConfigRuntime    = "GCP_RUNTIME"       // Runtime context (e.g., "local", "test", "prod").
	MaxRetries          = 3                   // Retries of a failed Gemini call.
)

// Environment variables that override secrets and connection strings.
const (
	EnvScraperToken    = "APIFY_TOKEN"
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvCacheDSN        = "CACHE_DSN"
	EnvRedisURL        = "REDIS_URL"
	EnvProjectID       = "GOOGLE_CLOUD_PROJECT"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes the base configuration file and then the runtime
// specific one into baseConfig. Missing files are skipped; values in the
// runtime file overwrite the base values.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode base configuration file %s: %w", baseConfigFileName, err)
		}
	}
	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode environment configuration file %s: %w", envConfigFileName, err)
		}
	}
	if config, ok := baseConfig.(*Config); ok {
		config.ApplyEnvOverrides()
	}
	return nil
}

// ApplyEnvOverrides replaces credentials and connection strings with the
// values of their environment variables, when set.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvScraperToken); v != "" {
		c.Scraper.Token = v
	}
	if v := os.Getenv(EnvGroqAPIKey); v != "" {
		c.GroqLLM.APIKey = v
		if c.Speech.APIKey == "" {
			c.Speech.APIKey = v
		}
	}
	if v := os.Getenv(EnvAnthropicAPIKey); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv(EnvCacheDSN); v != "" {
		c.Cache.DSN = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv(EnvProjectID); v != "" && c.Application.GoogleProjectId == "" {
		c.Application.GoogleProjectId = v
	}
}

// GenerateMultiModalResponse executes a request against a Gemini model and
// records token usage. Throttled, server side and timed out calls are retried
// up to MaxRetries times with a growing pause; other failures return at once.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	model *QuotaAwareGenerativeAIModel,
	system string,
	content []*genai.Content) (value string, err error) {
	var resp *genai.GenerateContentResponse
	for tryCount := 0; ; tryCount++ {
		resp, err = model.GenerateContent(ctx, system, content)
		if err == nil {
			break
		}
		if tryCount >= MaxRetries || ctx.Err() != nil || !isRetriableGeminiError(err) {
			return "", err
		}
		retryCounter.Add(ctx, 1)
		if err := sleepCtx(ctx, model.RetryPause*time.Duration(tryCount+1)); err != nil {
			return "", err
		}
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				sb.WriteString(part.Text)
			}
		}
	}
	return CleanJSON(sb.String()), nil
}

func isRetriableGeminiError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr genai.APIError
	code := 0
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	return errors.Is(ClassifyStatus(code, err), model.ErrTransient)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CleanJSON removes surrounding whitespace and a leading ```json / ``` fence
// together with its closing fence.
func CleanJSON(in string) string {
	out := strings.TrimSpace(in)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
		if nl := strings.IndexByte(out, '\n'); nl >= 0 && !strings.ContainsAny(out[:nl], "[{") {
			out = out[nl+1:]
		} else {
			out = strings.TrimPrefix(out, "json")
		}
	}
	out = strings.TrimSpace(out)
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

// Truncate returns at most limit runes of in. It never splits a multi-byte
// character. A non-positive limit returns in unchanged.
func Truncate(in string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(in) <= limit {
		return in
	}
	n := 0
	for i := range in {
		if n == limit {
			return in[:i]
		}
		n++
	}
	return in
}

// NewTextPart wraps a prompt as user content.
func NewTextPart(in string) []*genai.Content {
	return genai.Text(in)
}
