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

// Package cloud holds the application configuration and the adapters for the
// hosted services the extraction and generation workflows call: Google Cloud
// (Storage, Pub/Sub, BigQuery, IAM, Gemini), the scraping service, the
// speech-to-text service and the alternative LLM providers.
//
// This file defines the configuration structs loaded from TOML.
//
// Structs:
//   - Config: the root of the configuration tree.
//   - Extraction: fallback chain tuning (caption threshold, downloads, ffmpeg).
//   - Scraper, Speech, GroqLLM, Anthropic: third-party service settings.
//   - Cache: store backend and write mode.
//   - Generation: provider selection and prompt budget.
//   - VertexAiLLMModel, TopicSubscription, Storage, BigQueryDataSource,
//     PromptTemplates: Google Cloud settings.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings leaves every harm category unblocked. Transcripts of
// social media videos routinely trip the default thresholds.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// BigQueryDataSource names the dataset and the per-platform cache tables.
type BigQueryDataSource struct {
	DatasetName    string `toml:"dataset"`         // Dataset holding the cache tables.
	YouTubeTable   string `toml:"youtube_table"`   // Cache table for YouTube records.
	InstagramTable string `toml:"instagram_table"` // Cache table for Instagram records.
}

// PromptTemplates holds the text/template sources of every generative prompt.
type PromptTemplates struct {
	IdeasViral  string `toml:"ideas_viral"`  // Idea generation, viral mode.
	IdeasSales  string `toml:"ideas_sales"`  // Idea generation, sales mode.
	Carousel    string `toml:"carousel"`     // Carousel script from an idea.
	Hooks       string `toml:"hooks"`        // Verbal hook analysis.
	Trends      string `toml:"trends"`       // Trend/hype list.
	TrendScript string `toml:"trend_script"` // Script for a chosen trend.
	System      string `toml:"system"`       // Shared system instruction.
}

// VertexAiLLMModel configures one Gemini agent model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // Requests per second.
}

// TopicSubscription configures a Pub/Sub subscription and its result topic.
type TopicSubscription struct {
	Name             string `toml:"name"`
	ResultsTopic     string `toml:"results_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Storage configures the audio archive bucket.
type Storage struct {
	AudioArchiveBucket string `toml:"audio_archive_bucket"` // Empty disables archiving.
	AudioArchivePrefix string `toml:"audio_archive_prefix"`
	SignedURLMinutes   int    `toml:"signed_url_minutes"`
}

// Extraction tunes the fallback chain.
type Extraction struct {
	MinCaptionLength   int      `toml:"min_caption_length"`   // Captions shorter than this fall through.
	HTTPTimeoutSeconds int      `toml:"http_timeout_seconds"` // Per media download attempt.
	DownloadRetries    int      `toml:"download_retries"`     // Attempts per resolved media URL.
	UserAgent          string   `toml:"user_agent"`
	Resolvers          []string `toml:"resolvers"` // Ordered: scraped, yt-dlp, resolver-api.
	YtDlpPath          string   `toml:"yt_dlp_path"`
	ResolverAPIURL     string   `toml:"resolver_api_url"`
	FfmpegPath         string   `toml:"ffmpeg_path"`
	AudioBitrate       string   `toml:"audio_bitrate"`
	MaxAudioBytes      int64    `toml:"max_audio_bytes"`  // Speech API upload limit.
	MaxUploadBytes     int64    `toml:"max_upload_bytes"` // Upload transcription limit.
	TempDir            string   `toml:"temp_dir"`
	AnalyzeHooks       bool     `toml:"analyze_hooks"`
}

// Scraper configures the scraping service.
type Scraper struct {
	BaseURL              string  `toml:"base_url"`
	Token                string  `toml:"token"`
	YouTubeActor         string  `toml:"youtube_actor"`
	InstagramActor       string  `toml:"instagram_actor"`
	RequestsPerSecond    float64 `toml:"requests_per_second"`
	TimeoutSeconds       int     `toml:"timeout_seconds"`
	ResidentialProxy     bool    `toml:"residential_proxy"`
	PageMetadataFallback bool    `toml:"page_metadata_fallback"`
}

// Speech configures the OpenAI-compatible speech-to-text endpoint.
type Speech struct {
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// GroqLLM configures the OpenAI-compatible chat endpoint.
type GroqLLM struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	RateLimit   int     `toml:"rate_limit"`
}

// Anthropic configures the Anthropic messages endpoint.
type Anthropic struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int64  `toml:"max_tokens"`
}

// Cache selects the deduplication store.
type Cache struct {
	Backend   string `toml:"backend"`    // bigquery, sqlite, postgres, redis or memory.
	WriteMode string `toml:"write_mode"` // upsert or append.
	DSN       string `toml:"dsn"`        // sqlite path or postgres DSN.
	RedisURL  string `toml:"redis_url"`
	KeyPrefix string `toml:"key_prefix"`
}

// Generation selects the generator providers and the prompt budget.
type Generation struct {
	Provider             string `toml:"provider"`        // gemini, groq or anthropic.
	TrendsProvider       string `toml:"trends_provider"` // Provider for trend lists.
	ScriptProvider       string `toml:"script_provider"` // Provider for trend scripts.
	AgentModel           string `toml:"agent_model"`     // Key into AgentModels for Gemini.
	TranscriptBudget     int    `toml:"transcript_budget"`
	HookTranscriptBudget int    `toml:"hook_transcript_budget"`
	MaxAttempts          int    `toml:"max_attempts"`
}

// Config is the root configuration object.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		ThreadPoolSize            int    `toml:"thread_pool_size"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		HTTPPort                  int    `toml:"http_port"`
		TelemetryEnabled          bool   `toml:"telemetry_enabled"`
	} `toml:"application"`
	Extraction         Extraction                   `toml:"extraction"`
	Scraper            Scraper                      `toml:"scraper"`
	Speech             Speech                       `toml:"speech"`
	GroqLLM            GroqLLM                      `toml:"groq_llm"`
	Anthropic          Anthropic                    `toml:"anthropic"`
	Cache              Cache                        `toml:"cache"`
	Generation         Generation                   `toml:"generation"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
}

// NewConfig returns a Config with initialised maps and working defaults for
// everything that is not a credential.
func NewConfig() *Config {
	out := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	out.Application.Name = "content-extractor"
	out.Application.GoogleLocation = "us-central1"
	out.Application.ThreadPoolSize = 2
	out.Application.HTTPPort = 8080
	out.Extraction = Extraction{
		MinCaptionLength:   50,
		HTTPTimeoutSeconds: 60,
		DownloadRetries:    3,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Resolvers:          []string{"scraped", "yt-dlp"},
		YtDlpPath:          "yt-dlp",
		FfmpegPath:         "ffmpeg",
		AudioBitrate:       "32k",
		MaxAudioBytes:      25 << 20,
		MaxUploadBytes:     500 << 20,
		AnalyzeHooks:       true,
	}
	out.Scraper = Scraper{
		BaseURL:              "https://api.apify.com",
		YouTubeActor:         "apify~youtube-scraper",
		InstagramActor:       "apify~instagram-scraper",
		RequestsPerSecond:    1,
		TimeoutSeconds:       300,
		ResidentialProxy:     true,
		PageMetadataFallback: true,
	}
	out.Speech = Speech{BaseURL: "https://api.groq.com/openai/v1", Model: "whisper-large-v3"}
	out.GroqLLM = GroqLLM{BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile", Temperature: 0.7, RateLimit: 1}
	out.Anthropic = Anthropic{Model: "claude-haiku-4-5", MaxTokens: 4096}
	out.Cache = Cache{Backend: "memory", WriteMode: "upsert", KeyPrefix: "content-cache"}
	out.Generation = Generation{
		Provider:             "gemini",
		TrendsProvider:       "gemini",
		ScriptProvider:       "groq",
		AgentModel:           "creative-flash",
		TranscriptBudget:     10000,
		HookTranscriptBudget: 4000,
		MaxAttempts:          2,
	}
	out.Storage = Storage{AudioArchivePrefix: "audio", SignedURLMinutes: 15}
	out.BigQueryDataSource = BigQueryDataSource{DatasetName: "content_cache", YouTubeTable: "youtube", InstagramTable: "instagram"}
	return out
}
