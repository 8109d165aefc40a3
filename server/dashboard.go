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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// Stats is the body of GET /stats.
type Stats struct {
	CacheBackend      string         `json:"cache_backend"`
	WriteMode         string         `json:"write_mode"`
	CachedRecords     map[string]int `json:"cached_records"` // Distinct source URLs per cache table.
	GenerationEnabled bool           `json:"generation_enabled"`
	ArchiveEnabled    bool           `json:"archive_enabled"`
}

// Dashboard registers GET /stats: cache size and the enabled features.
func Dashboard(r *gin.RouterGroup, a *app.App) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			out := Stats{
				CacheBackend:      a.Config.Cache.Backend,
				WriteMode:         string(a.WriteMode),
				CachedRecords:     make(map[string]int, len(model.Platforms)),
				GenerationEnabled: a.Generation != nil,
				ArchiveEnabled:    a.Archive.Enabled(),
			}
			for _, platform := range model.Platforms {
				if _, seen := out.CachedRecords[platform.Table()]; seen {
					continue
				}
				ids, err := a.Store.KnownIDs(c.Request.Context(), platform)
				if err != nil {
					writeError(c, err)
					return
				}
				out.CachedRecords[platform.Table()] = len(ids)
			}
			c.JSON(http.StatusOK, out)
		})
	}
}
