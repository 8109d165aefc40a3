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

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/commands"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// NewRouter builds the gin engine with every /api/v1 route.
func NewRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware("content-extractor-server"))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		ExtractionRouter(apiV1, a)
		TranscriptionUpload(apiV1, a)
		GenerationRouter(apiV1, a)
		ProfileRouter(apiV1, a)
		Dashboard(apiV1, a)
	}
	return r
}

// statusOf maps the domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrExtractionFailed), errors.Is(err, model.ErrGenerationFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bind decodes the JSON body, reporting decode errors as validation errors.
func bind(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		writeError(c, model.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// ExtractionRouter registers:
//   - POST /extractions: run the fallback chain for one URL.
//   - GET /extractions?url=&platform=: cached record, 404 on a miss.
//   - GET /extractions/audio?url=: signed URL of the archived audio.
func ExtractionRouter(r *gin.RouterGroup, a *app.App) {
	extractions := r.Group("/extractions")
	{
		extractions.POST("", func(c *gin.Context) {
			var req model.ExtractionRequest
			if !bind(c, &req) {
				return
			}
			out, err := a.Extraction.Extract(c.Request.Context(), req, nil)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		extractions.GET("", func(c *gin.Context) {
			req := model.ExtractionRequest{URL: c.Query("url"), Platform: model.Platform(c.Query("platform"))}
			if err := req.Normalize(); err != nil {
				writeError(c, err)
				return
			}
			record, found, err := a.Store.Lookup(c.Request.Context(), req.Platform, req.URL)
			if err != nil {
				writeError(c, err)
				return
			}
			if !found {
				writeError(c, fmt.Errorf("%w: no cached extraction for %s", model.ErrNotFound, req.URL))
				return
			}
			c.JSON(http.StatusOK, record)
		})

		extractions.GET("/audio", func(c *gin.Context) {
			req := model.ExtractionRequest{URL: c.Query("url")}
			if err := req.Normalize(); err != nil {
				writeError(c, err)
				return
			}
			minutes := a.Config.Storage.SignedURLMinutes
			if minutes <= 0 {
				minutes = 15
			}
			signed, err := a.Archive.SignedURL(c.Request.Context(), req.URL, time.Duration(minutes)*time.Minute)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": signed})
		})
	}
}

// TranscriptionUpload registers POST /transcriptions, a multipart upload
// under the "file" field that is transcribed and never cached.
func TranscriptionUpload(r *gin.RouterGroup, a *app.App) {
	r.POST("/transcriptions", func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			writeError(c, model.NewValidationError("file", err.Error()))
			return
		}
		file, err := header.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer func() { _ = file.Close() }()

		out, err := a.Uploads.Transcribe(c.Request.Context(), &commands.UploadedMedia{FileName: header.Filename, Body: file})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
}

type ideasRequest struct {
	Transcript string                   `json:"transcript"`
	Extraction *model.ExtractionRequest `json:"extraction,omitempty"` // Used when transcript is empty.
	Mode       string                   `json:"mode"`
}

type carouselRequest struct {
	Idea       model.ContentIdea `json:"idea"`
	Transcript string            `json:"transcript"`
}

type trendScriptRequest struct {
	Trend   model.TrendIdea    `json:"trend"`
	Request model.TrendRequest `json:"request"`
}

// GenerationRouter registers the generative routes: /ideas, /carousels,
// /trends and /trends/script.
func GenerationRouter(r *gin.RouterGroup, a *app.App) {
	r.POST("/ideas", func(c *gin.Context) {
		var req ideasRequest
		if !bind(c, &req) {
			return
		}
		mode, err := model.ParseIdeaMode(req.Mode)
		if err != nil {
			writeError(c, err)
			return
		}
		gen, err := a.GenerationService()
		if err != nil {
			writeError(c, err)
			return
		}
		transcript := req.Transcript
		if transcript == "" && req.Extraction != nil {
			result, err := a.Extraction.Extract(c.Request.Context(), *req.Extraction, nil)
			if err != nil {
				writeError(c, err)
				return
			}
			transcript = result.Transcript
		}
		ideas, err := gen.GenerateIdeas(c.Request.Context(), transcript, mode)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": mode, "ideas": ideas})
	})

	r.POST("/carousels", func(c *gin.Context) {
		var req carouselRequest
		if !bind(c, &req) {
			return
		}
		gen, err := a.GenerationService()
		if err != nil {
			writeError(c, err)
			return
		}
		script, err := gen.GenerateCarousel(c.Request.Context(), req.Idea, req.Transcript)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, script)
	})

	trends := r.Group("/trends")
	{
		trends.POST("", func(c *gin.Context) {
			var req model.TrendRequest
			if !bind(c, &req) {
				return
			}
			gen, err := a.GenerationService()
			if err != nil {
				writeError(c, err)
				return
			}
			out, err := gen.GenerateTrends(c.Request.Context(), req)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"trends": out})
		})

		trends.POST("/script", func(c *gin.Context) {
			var req trendScriptRequest
			if !bind(c, &req) {
				return
			}
			gen, err := a.GenerationService()
			if err != nil {
				writeError(c, err)
				return
			}
			script, err := gen.WriteTrendScript(c.Request.Context(), req.Trend, req.Request)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"script": script})
		})
	}
}

// ProfileRouter registers POST /profiles/analyze.
func ProfileRouter(r *gin.RouterGroup, a *app.App) {
	r.POST("/profiles/analyze", func(c *gin.Context) {
		var req model.ProfileRequest
		if !bind(c, &req) {
			return
		}
		rows, err := a.Profiles.Analyze(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"handle": req.Handle, "rows": rows})
	})
}
