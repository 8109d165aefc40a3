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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"google.golang.org/genai"
)

// Generation providers accepted in the generation section.
const (
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

// ServiceClients holds the long-lived clients of the process. The Google
// Cloud clients are nil when no project is configured, which is enough for
// local runs against a sqlite or memory cache.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel

	Scraper      *ScraperClient
	PageMetadata *PageMetadataSource // Nil unless scraper.page_metadata_fallback is set.
	Resolvers    []ports.MediaResolver
	Groq         *GroqClient
	Anthropic    *AnthropicGenerator // Nil without an API key.
}

func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// MetadataSources returns the scraper followed by the page fallback.
func (c *ServiceClients) MetadataSources() []ports.MetadataSource {
	out := []ports.MetadataSource{c.Scraper}
	if c.PageMetadata != nil {
		out = append(out, c.PageMetadata)
	}
	return out
}

// TextGenerator returns the generator of a provider. agentModel selects the
// Gemini model from AgentModels.
func (c *ServiceClients) TextGenerator(provider string, agentModel string) (ports.TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGemini, "":
		model, ok := c.AgentModels[agentModel]
		if !ok {
			return nil, fmt.Errorf("gemini agent model %q is not configured", agentModel)
		}
		return NewGeminiGenerator(model), nil
	case ProviderGroq:
		return c.Groq, nil
	case ProviderAnthropic:
		if c.Anthropic == nil {
			return nil, errors.New("anthropic provider requires anthropic.api_key")
		}
		return c.Anthropic, nil
	}
	return nil, fmt.Errorf("unknown generation provider %q", provider)
}

// NewCloudServiceClients builds every client named in config.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	resolvers, err := NewMediaResolvers(config.Extraction)
	if err != nil {
		return nil, err
	}
	clients := &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
		Scraper:         NewScraperClient(config.Scraper),
		Resolvers:       resolvers,
		Groq:            NewGroqClient(config.GroqLLM, config.Speech),
	}
	if config.Scraper.PageMetadataFallback {
		clients.PageMetadata = NewPageMetadataSource(config.Extraction.UserAgent, time.Duration(config.Extraction.HTTPTimeoutSeconds)*time.Second)
	}
	if config.Anthropic.APIKey != "" {
		clients.Anthropic = NewAnthropicGenerator(config.Anthropic)
	}

	if config.Application.GoogleProjectId == "" {
		slog.Warn("no google project configured; running without Google Cloud clients")
		return clients, nil
	}
	if err := clients.connectGoogleCloud(ctx, config); err != nil {
		clients.Close()
		return nil, err
	}
	return clients, nil
}

func (c *ServiceClients) connectGoogleCloud(ctx context.Context, config *Config) (err error) {
	if c.StorageClient, err = storage.NewClient(ctx); err != nil {
		return err
	}
	if c.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return err
	}
	if c.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return err
	}
	if config.Application.SignerServiceAccountEmail != "" {
		if c.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
			return err
		}
	}

	slog.Info("creating genai client", "project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)
	c.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return fmt.Errorf("error creating genai client: %w", err)
	}

	for subKey, values := range config.TopicSubscriptions {
		listener, err := NewPubSubListener(c.PubsubClient, values.Name, nil)
		if err != nil {
			return err
		}
		listener.SetTimeout(time.Duration(values.TimeoutInSeconds) * time.Second)
		c.PubSubListeners[subKey] = listener
	}

	for amKey, values := range config.AgentModels {
		model := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](values.Temperature),
			TopP:              genai.Ptr[float32](values.TopP),
			TopK:              genai.Ptr[float32](values.TopK),
			MaxOutputTokens:   values.MaxTokens,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}},
			SafetySettings:    DefaultSafetySettings,
			ResponseMIMEType:  values.OutputFormat,
		}
		c.AgentModels[amKey] = NewQuotaAwareModel(model, values.Model, c.GenAIClient.Models, values.RateLimit)
	}
	return nil
}
