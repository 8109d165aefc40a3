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
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// MetadataScraper fetches the ContentItem of the requested URL. Sources are
// tried in order (the scraping service first, the public page as a fallback)
// and the first answer wins. The command is skipped when an item is already
// in the context.
type MetadataScraper struct {
	cor.BaseCommand
	sources []ports.MetadataSource
}

func NewMetadataScraper(name string, sources ...ports.MetadataSource) *MetadataScraper {
	out := &MetadataScraper{BaseCommand: *cor.NewBaseCommand(name), sources: sources}
	out.InputParamName = ParamRequest
	return out
}

func (c *MetadataScraper) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && itemFrom(context) == nil && len(c.sources) > 0
}

func (c *MetadataScraper) Execute(context cor.Context) {
	req := requestFrom(context)
	var errs []error
	for _, source := range c.sources {
		item, err := source.FetchItem(context.GetContext(), req.URL, req.Platform)
		if err != nil {
			slog.Warn("metadata source failed", "url", req.URL, "source", fmt.Sprintf("%T", source), "error", err)
			errs = append(errs, err)
			continue
		}
		if item.Platform == "" {
			item.Platform = req.Platform
		}
		c.Succeed(context)
		context.Add(ParamItem, item)
		return
	}
	c.Fail(context, fmt.Errorf("metadata for %s: %w", req.URL, errors.Join(errs...)))
}
