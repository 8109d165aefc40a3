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

// Package model defines the data structures that flow through the extraction
// and generation workflows: the scraped content item, its transcript, the
// cached record that deduplicates paid extraction, and the generated ideas,
// carousels and trend pitches.
package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Platform identifies where a piece of content was published.
type Platform string

const (
	PlatformYouTube           Platform = "youtube"
	PlatformInstagramReel     Platform = "instagram_reel"
	PlatformInstagramCarousel Platform = "instagram_carousel"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformYouTube, PlatformInstagramReel, PlatformInstagramCarousel}

// ParsePlatform accepts the canonical names plus the short aliases used by
// callers ("yt", "reel", "carousel", "instagram").
func ParsePlatform(in string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "youtube", "yt":
		return PlatformYouTube, nil
	case "instagram_reel", "reel", "instagram", "ig":
		return PlatformInstagramReel, nil
	case "instagram_carousel", "carousel":
		return PlatformInstagramCarousel, nil
	}
	return "", NewValidationError("platform", fmt.Sprintf("unsupported platform %q", in))
}

// DetectPlatform infers the platform from a permalink. Instagram "/p/" links
// may be reels or carousels; they are reported as carousels until the scraper
// says otherwise.
func DetectPlatform(raw string) (Platform, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", NewValidationError("url", fmt.Sprintf("not an absolute URL: %q", raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return PlatformYouTube, nil
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		if strings.HasPrefix(u.Path, "/p/") {
			return PlatformInstagramCarousel, nil
		}
		return PlatformInstagramReel, nil
	}
	return "", NewValidationError("url", fmt.Sprintf("unsupported host %q", u.Host))
}

// IsInstagram reports whether the platform belongs to the Instagram family.
func (p Platform) IsInstagram() bool {
	return p == PlatformInstagramReel || p == PlatformInstagramCarousel
}

// Table returns the per-platform table (or sheet) name. Reels and carousels
// share the Instagram table.
func (p Platform) Table() string {
	if p.IsInstagram() {
		return "instagram"
	}
	return "youtube"
}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}
