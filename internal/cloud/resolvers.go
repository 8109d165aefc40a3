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

// This file implements the interchangeable media resolvers used by the audio
// strategy. A resolver only produces a direct media URL; downloading is the
// job of the MediaDownloader command.
package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// Resolver names accepted in extraction.resolvers.
const (
	ResolverScraped     = "scraped"
	ResolverYtDlp       = "yt-dlp"
	ResolverResolverAPI = "resolver-api"
)

var ErrNoMediaURL = errors.New("no media url")

// ScrapedMediaResolver returns the media URL exposed by the scraping service.
type ScrapedMediaResolver struct{}

func (ScrapedMediaResolver) Name() string { return ResolverScraped }

func (ScrapedMediaResolver) Resolve(_ context.Context, _ string, item *model.ContentItem) (string, error) {
	if item == nil || strings.TrimSpace(item.MediaURL) == "" {
		return "", ErrNoMediaURL
	}
	return item.MediaURL, nil
}

// YtDlpResolver asks the yt-dlp binary for the best audio stream URL.
type YtDlpResolver struct {
	Path string
}

func (YtDlpResolver) Name() string { return ResolverYtDlp }

func (r YtDlpResolver) Resolve(ctx context.Context, sourceURL string, _ *model.ContentItem) (string, error) {
	path := r.Path
	if path == "" {
		path = "yt-dlp"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--no-warnings", "--no-playlist", "-f", "bestaudio/best", "-g", sourceURL)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); strings.HasPrefix(line, "http") {
			return line, nil
		}
	}
	return "", ErrNoMediaURL
}

// ResolverAPI posts the permalink to an HTTP download resolver and reads the
// direct URL from its JSON answer ({"status": "...", "url": "..."}).
type ResolverAPI struct {
	Endpoint string
	Client   *http.Client
}

func (ResolverAPI) Name() string { return ResolverResolverAPI }

func (r ResolverAPI) Resolve(ctx context.Context, sourceURL string, _ *model.ContentItem) (string, error) {
	body, _ := json.Marshal(map[string]string{"url": sourceURL, "downloadMode": "audio"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", ClassifyStatus(0, fmt.Errorf("resolver api: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", ClassifyStatus(resp.StatusCode, fmt.Errorf("resolver api: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	var out struct {
		Status string `json:"status"`
		URL    string `json:"url"`
		Error  any    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("resolver api: decode: %w", err)
	}
	if out.Status == "error" || out.URL == "" {
		return "", fmt.Errorf("resolver api: %w (status %q)", ErrNoMediaURL, out.Status)
	}
	return out.URL, nil
}

// NewMediaResolvers builds the resolvers named in config, in order.
func NewMediaResolvers(config Extraction) ([]ports.MediaResolver, error) {
	out := make([]ports.MediaResolver, 0, len(config.Resolvers))
	for _, name := range config.Resolvers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ResolverScraped:
			out = append(out, ScrapedMediaResolver{})
		case ResolverYtDlp:
			out = append(out, YtDlpResolver{Path: config.YtDlpPath})
		case ResolverResolverAPI:
			if config.ResolverAPIURL == "" {
				return nil, fmt.Errorf("resolver %q requires extraction.resolver_api_url", name)
			}
			out = append(out, ResolverAPI{Endpoint: config.ResolverAPIURL})
		default:
			return nil, fmt.Errorf("unknown media resolver %q", name)
		}
	}
	return out, nil
}
