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

// This file wraps the Gemini models client with a rate limiter so that the
// generation and hook analysis paths stay inside the project quota.
package cloud

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel decorates genai.Models with a token bucket.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
	RetryPause              time.Duration // Base pause before a retry; grows with each attempt.
}

// DefaultRetryPause is the first pause between retried Gemini calls.
const DefaultRetryPause = time.Second

// NewQuotaAwareModel allows requestsPerSecond calls per second with a burst of
// the same size. A non-positive rate means one call per second.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
		RetryPause:              DefaultRetryPause,
	}
}

// GenerateContent blocks until the limiter admits the call, then sends it. A
// non-empty system replaces the configured system instruction for this call.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, system string, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	config := q.GenerativeContentConfig
	if system != "" {
		var copied genai.GenerateContentConfig
		if config != nil {
			copied = *config
		}
		copied.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
		config = &copied
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, config)
}

// WithResponseMIMEType returns a copy of the model that answers with the given
// MIME type. The copy shares the rate limiter with its parent.
func (q *QuotaAwareGenerativeAIModel) WithResponseMIMEType(mimeType string) *QuotaAwareGenerativeAIModel {
	if q.GenerativeContentConfig != nil && q.GenerativeContentConfig.ResponseMIMEType == mimeType {
		return q
	}
	config := &genai.GenerateContentConfig{}
	if q.GenerativeContentConfig != nil {
		copied := *q.GenerativeContentConfig
		config = &copied
	}
	config.ResponseMIMEType = mimeType
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               q.ModelName,
		ModelHandle:             q.ModelHandle,
		RateLimit:               q.RateLimit,
		RetryPause:              q.RetryPause,
	}
}
