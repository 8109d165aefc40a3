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

// This file defines the command that downloads the media of a post to a
// local temporary file.
//
// Logic Flow:
//  1. Each configured resolver is asked for a direct media URL, in order.
//  2. The URL is downloaded with a browser user agent (and an Instagram
//     referer for Instagram media), retrying with a growing pause.
//  3. The first bytes are sniffed; HTML error pages and images are
//     rejected so the next resolver gets a chance.
//  4. The file is renamed with the detected extension, tracked for cleanup
//     and published under ParamMediaFile.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

const (
	MediaTempFilePrefix = "media-"
	instagramReferer    = "https://www.instagram.com/"
	sniffLength         = 262
)

// ErrNotMedia is returned when a resolver handed out something that is not
// an audio or video container.
var ErrNotMedia = errors.New("downloaded file is not media")

// MediaDownloader resolves and downloads the media of the requested URL.
type MediaDownloader struct {
	cor.BaseCommand
	resolvers []ports.MediaResolver
	client    *http.Client
	retries   int
	userAgent string
	tempDir   string
	// Backoff returns the pause before retry number attempt (0 based).
	Backoff func(attempt int) time.Duration
}

func NewMediaDownloader(name string, resolvers []ports.MediaResolver, client *http.Client, retries int, userAgent string, tempDir string) *MediaDownloader {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if retries <= 0 {
		retries = 1
	}
	out := &MediaDownloader{
		BaseCommand: *cor.NewBaseCommand(name),
		resolvers:   resolvers,
		client:      client,
		retries:     retries,
		userAgent:   userAgent,
		tempDir:     tempDir,
		Backoff:     func(attempt int) time.Duration { return time.Duration(2+attempt) * time.Second },
	}
	out.InputParamName = ParamRequest
	return out
}

func (c *MediaDownloader) IsExecutable(context cor.Context) bool {
	req := requestFrom(context)
	if !c.BaseCommand.IsExecutable(context) || req == nil || len(c.resolvers) == 0 {
		return false
	}
	// Image-only carousels have nothing to listen to.
	item := itemFrom(context)
	return item == nil || item.IsVideo || req.Platform != model.PlatformInstagramCarousel
}

func (c *MediaDownloader) Execute(context cor.Context) {
	req := requestFrom(context)
	item := itemFrom(context)

	var errs []error
	for _, resolver := range c.resolvers {
		mediaURL, err := resolver.Resolve(context.GetContext(), req.URL, item)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", resolver.Name(), err))
			continue
		}
		path, err := c.download(context, mediaURL, req.Platform)
		if err != nil {
			slog.Warn("media download failed", "url", req.URL, "resolver", resolver.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", resolver.Name(), err))
			continue
		}
		c.Succeed(context)
		slog.Info("media downloaded", "url", req.URL, "resolver", resolver.Name(), "path", path)
		context.Add(ParamMediaFile, path)
		return
	}
	c.Fail(context, fmt.Errorf("%w: media download for %s: %w", model.ErrExtractionFailed, req.URL, errors.Join(errs...)))
}

func (c *MediaDownloader) download(context cor.Context, mediaURL string, platform model.Platform) (string, error) {
	ctx := context.GetContext()
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			if err := pause(ctx, c.Backoff(attempt-1)); err != nil {
				return "", err
			}
		}
		path, err := c.fetch(context, mediaURL, platform)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotMedia) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *MediaDownloader) fetch(context cor.Context, mediaURL string, platform model.Platform) (string, error) {
	httpReq, err := http.NewRequestWithContext(context.GetContext(), http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if platform.IsInstagram() {
		httpReq.Header.Set("Referer", instagramReferer)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET media: status %d", resp.StatusCode)
	}

	tempFile, err := os.CreateTemp(c.tempDir, MediaTempFilePrefix)
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	context.AddTempFile(tempFile.Name())
	written, err := io.Copy(tempFile, resp.Body)
	_ = tempFile.Close()
	if err != nil {
		return "", fmt.Errorf("copy media, %d bytes written: %w", written, err)
	}
	if written == 0 {
		return "", fmt.Errorf("%w: empty body", ErrNotMedia)
	}
	return c.sniff(context, tempFile.Name())
}

// sniff rejects non-media payloads and renames the file with the detected
// extension. Unknown containers are passed through for ffmpeg to judge.
func (c *MediaDownloader) sniff(context cor.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	head := make([]byte, sniffLength)
	n, _ := io.ReadFull(file, head)
	_ = file.Close()

	if strings.HasPrefix(http.DetectContentType(head[:n]), "text/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotMedia, http.DetectContentType(head[:n]))
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return path, nil
	}
	if !filetype.IsVideo(head[:n]) && !filetype.IsAudio(head[:n]) {
		return "", fmt.Errorf("%w: detected %s", ErrNotMedia, kind.MIME.Value)
	}
	renamed := path + "." + kind.Extension
	if err := os.Rename(path, renamed); err != nil {
		return "", err
	}
	context.AddTempFile(renamed)
	return renamed, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
