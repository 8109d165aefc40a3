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

// Package services contains the data access and business services used by
// the workflows and the HTTP layer: the cache stores, the generation service
// and the audio archive.
//
// This file centralises the BigQuery statements of the cache store. The %s
// verb receives the fully qualified table name; values are always bound as
// named query parameters.
package services

const (
	// QryLookupBySourceURL returns the most recent row for a source URL.
	// Append mode allows duplicates, so the latest collected_at wins.
	QryLookupBySourceURL = "SELECT * FROM `%s` WHERE source_url = @source_url ORDER BY collected_at DESC LIMIT 1"

	// QryKnownIDs lists every record id of a table.
	QryKnownIDs = "SELECT DISTINCT id FROM `%s`"

	// QryMergeRecord overwrites the row of a source URL or inserts it. The
	// USING clause lists the columns in table order so INSERT ROW lines up.
	QryMergeRecord = "MERGE `%s` T " +
		"USING (SELECT @id AS id, @collected_at AS collected_at, @author_handle AS author_handle, " +
		"@posted_at AS posted_at, @source_url AS source_url, @view_count AS view_count, " +
		"@like_count AS like_count, @comment_count AS comment_count, @transcript AS transcript, " +
		"@hook AS hook, @caption AS caption, @platform AS platform, @source AS source) S " +
		"ON T.source_url = S.source_url " +
		"WHEN MATCHED THEN UPDATE SET id = S.id, collected_at = S.collected_at, author_handle = S.author_handle, " +
		"posted_at = S.posted_at, view_count = S.view_count, like_count = S.like_count, " +
		"comment_count = S.comment_count, transcript = S.transcript, hook = S.hook, caption = S.caption, " +
		"platform = S.platform, source = S.source " +
		"WHEN NOT MATCHED THEN INSERT ROW"
)
