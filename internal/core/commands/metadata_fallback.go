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
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// MetadataFallback is the last strategy: the post caption, then the long
// description, then the title stand in for a transcript.
type MetadataFallback struct {
	cor.BaseCommand
}

func NewMetadataFallback(name string) *MetadataFallback {
	out := &MetadataFallback{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = ParamItem
	return out
}

func (c *MetadataFallback) Execute(context cor.Context) {
	item := itemFrom(context)
	for _, text := range []string{item.CaptionText, item.Description, item.Title} {
		if text = strings.TrimSpace(text); text != "" {
			c.Succeed(context)
			setTranscript(context, text, model.SourceMetadata)
			return
		}
	}
	c.Fail(context, fmt.Errorf("%w: %s has no caption, description or title", cor.ErrNoResult, item.SourceURL))
}
