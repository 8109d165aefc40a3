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
	"time"

	"github.com/google/uuid"
)

// TranscriptSource names the extraction strategy that produced a transcript.
type TranscriptSource string

const (
	SourceCache        TranscriptSource = "cache"
	SourceCaptions     TranscriptSource = "captions"
	SourceSpeechToText TranscriptSource = "speech_to_text"
	SourceMetadata     TranscriptSource = "metadata"
	SourceUpload       TranscriptSource = "upload"
)

// NoHook is stored when hook analysis was skipped or failed.
const NoHook = "-"

// ContentItem is one scraped post or video. It is never re-fetched once a
// CacheRecord exists for its SourceURL.
type ContentItem struct {
	SourceURL    string    `json:"source_url"`            // Permalink used as the cache key.
	Platform     Platform  `json:"platform"`              // Refined by the scraper (reel vs carousel).
	ExternalID   string    `json:"external_id"`           // Platform id or shortcode.
	AuthorHandle string    `json:"author_handle"`         // Channel name or Instagram username.
	Title        string    `json:"title,omitempty"`       // Video title when the platform has one.
	PostedAt     time.Time `json:"posted_at"`             // Publication time.
	ViewCount    int64     `json:"view_count"`            // Views or plays.
	LikeCount    int64     `json:"like_count"`            // Likes.
	CommentCount int64     `json:"comment_count"`         // Comments.
	CaptionText  string    `json:"caption_text"`          // Post caption or video description.
	Subtitles    string    `json:"subtitles,omitempty"`   // Native captions flattened to text.
	MediaURL     string    `json:"media_url,omitempty"`   // Direct video URL when the scraper exposes one.
	ImageAlts    []string  `json:"image_alts,omitempty"`  // Carousel slide alt texts.
	IsVideo      bool      `json:"is_video"`              // False for image posts and carousels without video.
	Description  string    `json:"description,omitempty"` // Long description (YouTube).
}

// CarouselText renders the caption plus the visual alt texts of a carousel,
// the textual stand-in used when a carousel has no audio.
func (c *ContentItem) CarouselText() string {
	if c == nil {
		return ""
	}
	alts := make([]string, 0, len(c.ImageAlts))
	for _, alt := range c.ImageAlts {
		if alt = strings.TrimSpace(alt); alt != "" {
			alts = append(alts, alt)
		}
	}
	if strings.TrimSpace(c.CaptionText) == "" && len(alts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("CAPTION:\n")
	b.WriteString(strings.TrimSpace(c.CaptionText))
	b.WriteString("\nVISUAL:\n")
	b.WriteString(strings.Join(alts, "\n"))
	return b.String()
}

// Transcript is the text derived for one SourceURL.
type Transcript struct {
	SourceURL string           `json:"source_url"`
	Text      string           `json:"text"`
	Source    TranscriptSource `json:"source"`
}

// CacheRecord is the persisted row that marks a SourceURL as already
// extracted. Field order matches the column order of the tabular store.
type CacheRecord struct {
	Id           string    `json:"id" bigquery:"id"`
	CollectedAt  time.Time `json:"collected_at" bigquery:"collected_at"`
	AuthorHandle string    `json:"author_handle" bigquery:"author_handle"`
	PostedAt     time.Time `json:"posted_at" bigquery:"posted_at"`
	SourceURL    string    `json:"source_url" bigquery:"source_url"`
	ViewCount    int64     `json:"view_count" bigquery:"view_count"`
	LikeCount    int64     `json:"like_count" bigquery:"like_count"`
	CommentCount int64     `json:"comment_count" bigquery:"comment_count"`
	Transcript   string    `json:"transcript" bigquery:"transcript"`
	Hook         string    `json:"hook" bigquery:"hook"`
	Caption      string    `json:"caption" bigquery:"caption"`
	Platform     Platform  `json:"platform" bigquery:"platform"`
	Source       string    `json:"source" bigquery:"source"`
}

// RecordID derives the stable record id of a source URL (UUIDv5, URL namespace).
func RecordID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(NormalizeURL(sourceURL))).String()
}

// NormalizeURL trims whitespace and a trailing slash so that equivalent
// permalinks share one cache key.
func NormalizeURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

// NewCacheRecord assembles the row written back after a successful extraction.
// The item may be nil when metadata scraping failed.
func NewCacheRecord(sourceURL string, platform Platform, item *ContentItem, transcript Transcript, hook string) *CacheRecord {
	if hook == "" {
		hook = NoHook
	}
	out := &CacheRecord{
		Id:          RecordID(sourceURL),
		CollectedAt: time.Now().UTC(),
		SourceURL:   NormalizeURL(sourceURL),
		Transcript:  transcript.Text,
		Hook:        hook,
		Platform:    platform,
		Source:      string(transcript.Source),
	}
	if item != nil {
		out.AuthorHandle = item.AuthorHandle
		out.PostedAt = item.PostedAt.UTC()
		out.ViewCount = item.ViewCount
		out.LikeCount = item.LikeCount
		out.CommentCount = item.CommentCount
		out.Caption = item.CaptionText
	}
	return out
}

// Validate enforces the fields every backend relies on.
func (r *CacheRecord) Validate() error {
	switch {
	case r == nil:
		return NewValidationError("record", "missing")
	case strings.TrimSpace(r.SourceURL) == "":
		return NewValidationError("source_url", "required")
	case strings.TrimSpace(r.Transcript) == "":
		return NewValidationError("transcript", "required")
	case !r.Platform.Valid():
		return NewValidationError("platform", "unknown platform "+string(r.Platform))
	}
	if r.Id == "" {
		r.Id = RecordID(r.SourceURL)
	}
	return nil
}

// ToTranscript returns the cached transcript.
func (r *CacheRecord) ToTranscript() Transcript {
	return Transcript{SourceURL: r.SourceURL, Text: r.Transcript, Source: SourceCache}
}
