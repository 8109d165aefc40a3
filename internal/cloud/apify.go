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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"golang.org/x/time/rate"
)

// ScraperClient runs scraping actors synchronously and maps their dataset
// items to model.ContentItem. It implements ports.MetadataSource and
// ports.ProfileSource.
type ScraperClient struct {
	config  Scraper
	client  *http.Client
	limiter *rate.Limiter
}

func NewScraperClient(config Scraper) *ScraperClient {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &ScraperClient{
		config:  config,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchItem scrapes a single post or video.
func (s *ScraperClient) FetchItem(ctx context.Context, sourceURL string, platform model.Platform) (*model.ContentItem, error) {
	var input map[string]any
	actor := s.config.InstagramActor
	if platform == model.PlatformYouTube {
		actor = s.config.YouTubeActor
		input = map[string]any{
			"startUrls":         []map[string]string{{"url": sourceURL}},
			"downloadSubtitles": true,
			"maxResults":        1,
			"resultsType":       "details",
		}
	} else {
		input = map[string]any{
			"directUrls":  []string{sourceURL},
			"resultsType": "posts",
		}
		s.addProxy(input)
	}

	items, err := s.run(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: scraper returned no items for %s", model.ErrNotFound, sourceURL)
	}
	item := items[0].toContentItem(platform)
	item.SourceURL = sourceURL
	return item, nil
}

// FetchProfile lists up to limit recent posts of handle.
func (s *ScraperClient) FetchProfile(ctx context.Context, handle string, platform model.Platform, limit int) ([]model.ContentItem, error) {
	var input map[string]any
	actor := s.config.InstagramActor
	if platform == model.PlatformYouTube {
		actor = s.config.YouTubeActor
		input = map[string]any{
			"startUrls":   []map[string]string{{"url": "https://www.youtube.com/@" + handle + "/videos"}},
			"maxResults":  limit,
			"resultsType": "details",
		}
	} else {
		input = map[string]any{
			"directUrls":   []string{"https://www.instagram.com/" + handle + "/"},
			"resultsType":  "posts",
			"resultsLimit": limit,
			"searchType":   "user",
		}
		s.addProxy(input)
	}

	items, err := s.run(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	out := make([]model.ContentItem, 0, len(items))
	for _, raw := range items {
		item := raw.toContentItem(platform)
		if item.SourceURL == "" {
			continue
		}
		if item.AuthorHandle == "" {
			item.AuthorHandle = handle
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *ScraperClient) addProxy(input map[string]any) {
	if s.config.ResidentialProxy {
		input["proxy"] = map[string]any{"useApifyProxy": true, "apifyProxyGroups": []string{"RESIDENTIAL"}}
	}
}

func (s *ScraperClient) run(ctx context.Context, actor string, input map[string]any) ([]scrapedItem, error) {
	if s.config.Token == "" {
		return nil, fmt.Errorf("scraper token is not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(actor), url.QueryEscape(s.config.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ClassifyStatus(0, fmt.Errorf("scraper actor %s: %w", actor, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ClassifyStatus(resp.StatusCode, fmt.Errorf("scraper actor %s: status %d: %s", actor, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	var items []scrapedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("scraper actor %s: decode dataset: %w", actor, err)
	}
	slog.Debug("scraper actor finished", "actor", actor, "items", len(items), "elapsed", time.Since(start))
	return items, nil
}

// flexInt accepts JSON numbers, numeric strings and null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

type scrapedChild struct {
	Type     string `json:"type"`
	IsVideo  bool   `json:"is_video"`
	VideoURL string `json:"videoUrl"`
	Alt      string `json:"alt"`
}

type scrapedSubtitleLine struct {
	Text string `json:"text"`
}

type scrapedSubtitle struct {
	Lines     []scrapedSubtitleLine `json:"lines"`
	Plaintext string                `json:"plaintext"`
	Srt       string                `json:"srt"`
}

// scrapedItem is the union of the fields returned by the YouTube and
// Instagram actors.
type scrapedItem struct {
	ID             string          `json:"id"`
	URL            string          `json:"url"`
	ShortCode      string          `json:"shortCode"`
	Type           string          `json:"type"`
	IsVideo        bool            `json:"is_video"`
	Title          string          `json:"title"`
	Caption        string          `json:"caption"`
	Description    string          `json:"description"`
	Text           string          `json:"text"`
	Alt            string          `json:"alt"`
	ChannelName    string          `json:"channelName"`
	OwnerUsername  string          `json:"ownerUsername"`
	Timestamp      string          `json:"timestamp"`
	Date           string          `json:"date"`
	VideoURL       string          `json:"videoUrl"`
	ViewCount      flexInt         `json:"viewCount"`
	VideoViewCount flexInt         `json:"videoViewCount"`
	PlayCount      flexInt         `json:"playCount"`
	Likes          flexInt         `json:"likes"`
	LikesCount     flexInt         `json:"likesCount"`
	CommentsCount  flexInt         `json:"commentsCount"`
	ChildPosts     []scrapedChild  `json:"childPosts"`
	Subtitles      json.RawMessage `json:"subtitles"`
}

func (s scrapedItem) toContentItem(platform model.Platform) *model.ContentItem {
	item := &model.ContentItem{
		Platform:     platform,
		ExternalID:   s.ID,
		Title:        s.Title,
		AuthorHandle: firstNonBlank(s.OwnerUsername, s.ChannelName),
		PostedAt:     parseScrapedTime(firstNonBlank(s.Timestamp, s.Date)),
		ViewCount:    int64(maxFlex(s.VideoViewCount, s.PlayCount, s.ViewCount)),
		LikeCount:    int64(maxFlex(s.LikesCount, s.Likes)),
		CommentCount: int64(s.CommentsCount),
		CaptionText:  firstNonBlank(s.Caption, s.Text),
		Description:  s.Description,
		Subtitles:    flattenSubtitles(s.Subtitles),
		MediaURL:     s.VideoURL,
		IsVideo:      platform == model.PlatformYouTube || s.IsVideo || s.VideoURL != "" || s.Type == "Video" || s.Type == "Reel" || s.Type == "GraphVideo",
	}
	if s.Alt != "" {
		item.ImageAlts = append(item.ImageAlts, s.Alt)
	}
	for _, child := range s.ChildPosts {
		if child.Alt != "" {
			item.ImageAlts = append(item.ImageAlts, child.Alt)
		}
		if item.MediaURL == "" && child.VideoURL != "" && (child.Type == "Video" || child.IsVideo) {
			item.MediaURL = child.VideoURL
			item.IsVideo = true
		}
	}
	switch {
	case s.URL != "":
		item.SourceURL = s.URL
	case s.ShortCode != "":
		item.SourceURL = "https://www.instagram.com/p/" + s.ShortCode + "/"
	}
	item.SourceURL = model.NormalizeURL(item.SourceURL)
	if platform.IsInstagram() {
		switch {
		case item.IsVideo:
			item.Platform = model.PlatformInstagramReel
		case s.Type == "Sidecar" || s.Type == "Image":
			item.Platform = model.PlatformInstagramCarousel
		}
	}
	return item
}

func flattenSubtitles(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var tracks []scrapedSubtitle
	if err := json.Unmarshal(raw, &tracks); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, track := range tracks {
		if len(track.Lines) > 0 {
			for _, line := range track.Lines {
				sb.WriteString(line.Text)
				sb.WriteString(" ")
			}
		} else if track.Plaintext != "" {
			sb.WriteString(track.Plaintext)
			sb.WriteString(" ")
		} else if track.Srt != "" {
			sb.WriteString(srtText(track.Srt))
			sb.WriteString(" ")
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

// srtText drops the cue numbers and timing lines of an SRT document.
func srtText(srt string) string {
	var parts []string
	for _, line := range strings.Split(srt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") {
			continue
		}
		if _, err := strconv.Atoi(line); err == nil {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func parseScrapedTime(in string) time.Time {
	if in == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, in); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func maxFlex(values ...flexInt) flexInt {
	var out flexInt
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
