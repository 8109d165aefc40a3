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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// Cache backends accepted in cache.backend.
const (
	BackendBigQuery = "bigquery"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// NewCacheStore opens the backend selected in config. The BigQuery client is
// only required by the bigquery backend.
func NewCacheStore(ctx context.Context, config *cloud.Config, bq *bigquery.Client) (ports.CacheStore, error) {
	switch strings.ToLower(strings.TrimSpace(config.Cache.Backend)) {
	case BackendBigQuery:
		if bq == nil {
			return nil, errors.New("bigquery cache requires a BigQuery client")
		}
		ds := config.BigQueryDataSource
		return NewBigQueryStore(bq, ds.DatasetName, ds.YouTubeTable, ds.InstagramTable), nil
	case BackendSQLite:
		return OpenSQLiteStore(ctx, config.Cache.DSN)
	case BackendPostgres:
		return OpenPostgresStore(ctx, config.Cache.DSN)
	case BackendRedis:
		return OpenRedisStore(ctx, config.Cache.RedisURL, config.Cache.KeyPrefix)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
}

// ParseWriteMode maps cache.write_mode to a ports.WriteMode, defaulting to upsert.
func ParseWriteMode(in string) (ports.WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "", string(ports.WriteModeUpsert):
		return ports.WriteModeUpsert, nil
	case string(ports.WriteModeAppend):
		return ports.WriteModeAppend, nil
	}
	return "", fmt.Errorf("unknown cache write mode %q", in)
}
