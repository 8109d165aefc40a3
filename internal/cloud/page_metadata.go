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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// PageMetadataSource reads the Open Graph tags of the public page. It is the
// metadata source of last resort when the scraping service is unavailable;
// it never yields subtitles.
type PageMetadataSource struct {
	client    *http.Client
	userAgent string
}

func NewPageMetadataSource(userAgent string, timeout time.Duration) *PageMetadataSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PageMetadataSource{client: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

func (p *PageMetadataSource) FetchItem(ctx context.Context, sourceURL string, platform model.Platform) (*model.ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ClassifyStatus(0, fmt.Errorf("page metadata: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(resp.StatusCode, fmt.Errorf("page metadata: unexpected status code: %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page metadata: parse html: %w", err)
	}
	return ParsePageMetadata(doc, sourceURL, platform), nil
}

// ParsePageMetadata maps the meta tags of doc to a ContentItem.
func ParsePageMetadata(doc *goquery.Document, sourceURL string, platform model.Platform) *model.ContentItem {
	meta := func(keys ...string) string {
		for _, key := range keys {
			selector := fmt.Sprintf(`meta[property=%q], meta[name=%q], meta[itemprop=%q]`, key, key, key)
			if v, ok := doc.Find(selector).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	item := &model.ContentItem{
		SourceURL:    model.NormalizeURL(sourceURL),
		Platform:     platform,
		Title:        meta("og:title", "title", "twitter:title"),
		Description:  meta("og:description", "description", "twitter:description"),
		AuthorHandle: meta("author", "og:site_name"),
		MediaURL:     meta("og:video:secure_url", "og:video:url", "og:video"),
	}
	if item.Title == "" {
		item.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	item.CaptionText = item.Description
	item.IsVideo = platform == model.PlatformYouTube || item.MediaURL != "" || strings.HasPrefix(meta("og:type"), "video")
	if views, err := strconv.ParseInt(meta("interactionCount", "userInteractionCount"), 10, 64); err == nil {
		item.ViewCount = views
	}
	if published := meta("datePublished", "uploadDate", "article:published_time"); published != "" {
		item.PostedAt = parseScrapedTime(published)
	}
	doc.Find(`meta[property="og:image:alt"]`).Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("content"); ok && strings.TrimSpace(alt) != "" {
			item.ImageAlts = append(item.ImageAlts, strings.TrimSpace(alt))
		}
	})
	return item
}
