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
	"unicode/utf8"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// DefaultMinCaptionLength is the shortest native caption accepted as a
// transcript. Anything shorter is usually a music tag or "[Music]".
const DefaultMinCaptionLength = 50

// CaptionsExtractor uses text the platform already has: the native
// subtitles of a video, or the caption plus slide alt texts of a carousel.
type CaptionsExtractor struct {
	cor.BaseCommand
	minLength int
}

func NewCaptionsExtractor(name string, minLength int) *CaptionsExtractor {
	if minLength <= 0 {
		minLength = DefaultMinCaptionLength
	}
	out := &CaptionsExtractor{BaseCommand: *cor.NewBaseCommand(name), minLength: minLength}
	out.InputParamName = ParamItem
	return out
}

func (c *CaptionsExtractor) Execute(context cor.Context) {
	item := itemFrom(context)
	var text string
	if item.Platform == model.PlatformInstagramCarousel && !item.IsVideo {
		text = item.CarouselText()
	} else {
		text = strings.TrimSpace(item.Subtitles)
	}
	if n := utf8.RuneCountInString(text); n < c.minLength {
		c.Fail(context, fmt.Errorf("%w: captions too short (%d < %d chars)", cor.ErrNoResult, n, c.minLength))
		return
	}
	c.Succeed(context)
	setTranscript(context, text, model.SourceCaptions)
}
