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
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"google.golang.org/api/iterator"
)

// BigQueryStore keeps one cache table per platform family in a dataset.
type BigQueryStore struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	YouTubeTable   string
	InstagramTable string
}

func NewBigQueryStore(client *bigquery.Client, dataset string, youtubeTable string, instagramTable string) *BigQueryStore {
	return &BigQueryStore{
		BigqueryClient: client,
		DatasetName:    dataset,
		YouTubeTable:   youtubeTable,
		InstagramTable: instagramTable,
	}
}

func (s *BigQueryStore) table(platform model.Platform) *bigquery.Table {
	name := s.YouTubeTable
	if platform.IsInstagram() {
		name = s.InstagramTable
	}
	return s.BigqueryClient.Dataset(s.DatasetName).Table(name)
}

// GetFQN returns the dotted, queryable name of a platform table.
func (s *BigQueryStore) GetFQN(platform model.Platform) string {
	return strings.Replace(s.table(platform).FullyQualifiedName(), ":", ".", -1)
}

func (s *BigQueryStore) Lookup(ctx context.Context, platform model.Platform, sourceURL string) (*model.CacheRecord, bool, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryLookupBySourceURL, s.GetFQN(platform)))
	q.Parameters = []bigquery.QueryParameter{{Name: "source_url", Value: model.NormalizeURL(sourceURL)}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	record := &model.CacheRecord{}
	err = itr.Next(record)
	if errors.Is(err, iterator.Done) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	return record, true, nil
}

// Upsert runs a MERGE keyed on source_url. BigQuery serialises concurrent
// DML against one table, so at most one row per URL survives.
func (s *BigQueryStore) Upsert(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryMergeRecord, s.GetFQN(record.Platform)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: record.Id},
		{Name: "collected_at", Value: record.CollectedAt},
		{Name: "author_handle", Value: record.AuthorHandle},
		{Name: "posted_at", Value: record.PostedAt},
		{Name: "source_url", Value: record.SourceURL},
		{Name: "view_count", Value: record.ViewCount},
		{Name: "like_count", Value: record.LikeCount},
		{Name: "comment_count", Value: record.CommentCount},
		{Name: "transcript", Value: record.Transcript},
		{Name: "hook", Value: record.Hook},
		{Name: "caption", Value: record.Caption},
		{Name: "platform", Value: string(record.Platform)},
		{Name: "source", Value: record.Source},
	}
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Append streams the record into the platform table.
func (s *BigQueryStore) Append(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if err := s.table(record.Platform).Inserter().Put(ctx, record); err != nil {
		return fmt.Errorf("cache append: %w", err)
	}
	return nil
}

func (s *BigQueryStore) KnownIDs(ctx context.Context, platform model.Platform) (map[string]bool, error) {
	itr, err := s.BigqueryClient.Query(fmt.Sprintf(QryKnownIDs, s.GetFQN(platform))).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("known ids: %w", err)
	}
	out := make(map[string]bool)
	for {
		var row struct {
			Id string `bigquery:"id"`
		}
		err := itr.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("known ids: %w", err)
		}
		out[row.Id] = true
	}
	return out, nil
}

// Close is a no-op; the client is owned by cloud.ServiceClients.
func (s *BigQueryStore) Close() error {
	return nil
}
