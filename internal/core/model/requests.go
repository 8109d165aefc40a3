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

package model

import (
	"strings"
)

// ExtractionRequest asks for the transcript of one URL. Platform is optional
// and inferred from the URL when empty.
type ExtractionRequest struct {
	URL      string   `json:"url"`
	Platform Platform `json:"platform,omitempty"`
}

// Normalize validates the request and fills in the platform.
func (r *ExtractionRequest) Normalize() error {
	r.URL = NormalizeURL(r.URL)
	if r.URL == "" {
		return NewValidationError("url", "required")
	}
	detected, err := DetectPlatform(r.URL)
	if err != nil {
		return err
	}
	if r.Platform == "" {
		r.Platform = detected
		return nil
	}
	parsed, err := ParsePlatform(string(r.Platform))
	if err != nil {
		return err
	}
	if parsed.IsInstagram() != detected.IsInstagram() {
		return NewValidationError("platform", "platform "+string(parsed)+" does not match URL host")
	}
	r.Platform = parsed
	return nil
}

// ExtractionResult is the response of the extraction workflow.
type ExtractionResult struct {
	SourceURL  string           `json:"source_url"`
	Platform   Platform         `json:"platform"`
	Transcript string           `json:"transcript"`
	Source     TranscriptSource `json:"source"`
	CacheHit   bool             `json:"cache_hit"`
	Hook       string           `json:"hook,omitempty"`
	Item       *ContentItem     `json:"item,omitempty"`
	Attempts   []string         `json:"attempts,omitempty"` // Strategies that fell through before the winner.
}

// TrendRequest describes the niche and tone of a trends/newsjacking run.
type TrendRequest struct {
	Niche  string `json:"niche"`
	Window string `json:"window"`
	Tone   string `json:"tone"`
	Notes  string `json:"notes,omitempty"`
}

func (r *TrendRequest) Validate() error {
	if strings.TrimSpace(r.Niche) == "" {
		return NewValidationError("niche", "required")
	}
	if strings.TrimSpace(r.Window) == "" {
		r.Window = "last 7 days"
	}
	return nil
}

// ProfileRequest drives the profile analyzer.
type ProfileRequest struct {
	Handle        string   `json:"handle"`
	Platform      Platform `json:"platform"`
	Days          int      `json:"days"`           // Only posts newer than this many days.
	TopN          int      `json:"top_n"`          // Keep the N most viewed posts.
	TranscribeTop int      `json:"transcribe_top"` // Run extraction for the first X of those.
	ScrapeLimit   int      `json:"scrape_limit,omitempty"`
}

func (r *ProfileRequest) Normalize() error {
	r.Handle = strings.TrimPrefix(strings.TrimSpace(r.Handle), "@")
	if r.Handle == "" {
		return NewValidationError("handle", "required")
	}
	if r.Platform == "" {
		r.Platform = PlatformInstagramReel
	} else {
		parsed, err := ParsePlatform(string(r.Platform))
		if err != nil {
			return err
		}
		r.Platform = parsed
	}
	if r.Days <= 0 {
		r.Days = 30
	}
	if r.TopN <= 0 {
		r.TopN = 10
	}
	if r.TranscribeTop < 0 || r.TranscribeTop > r.TopN {
		r.TranscribeTop = r.TopN
	}
	if r.ScrapeLimit <= 0 {
		r.ScrapeLimit = 30
	}
	return nil
}

// ProfileRow is one analysed post of a profile run. Error is scoped to the row.
type ProfileRow struct {
	Item       ContentItem      `json:"item"`
	Transcript string           `json:"transcript,omitempty"`
	Source     TranscriptSource `json:"source,omitempty"`
	Hook       string           `json:"hook,omitempty"`
	Known      bool             `json:"known"` // Already present in the cache before this run.
	Error      string           `json:"error,omitempty"`
}
