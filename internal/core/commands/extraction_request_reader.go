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

package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// ExtractionRequestReader is the entry command of the extraction workflow.
// It accepts the raw Pub/Sub payload (a JSON document or a bare URL) or an
// already decoded request, validates it and publishes it under ParamRequest.
type ExtractionRequestReader struct {
	cor.BaseCommand
}

func NewExtractionRequestReader(name string) *ExtractionRequestReader {
	return &ExtractionRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *ExtractionRequestReader) Execute(context cor.Context) {
	req, err := decodeRequest(context.Get(c.GetInputParam()))
	if err == nil {
		err = req.Normalize()
	}
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ParamRequest, req)
	context.Add(c.GetOutputParam(), req)
}

func decodeRequest(in any) (*model.ExtractionRequest, error) {
	switch v := in.(type) {
	case *model.ExtractionRequest:
		out := *v
		return &out, nil
	case model.ExtractionRequest:
		return &v, nil
	case []byte:
		return decodeRequest(string(v))
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return nil, model.NewValidationError("url", "required")
		}
		if !strings.HasPrefix(raw, "{") {
			return &model.ExtractionRequest{URL: raw}, nil
		}
		out := &model.ExtractionRequest{}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return nil, fmt.Errorf("%w: malformed extraction request: %w", model.ErrValidation, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported request type %T", model.ErrValidation, in)
}
