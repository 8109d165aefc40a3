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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the latest record of each URL under
// <prefix>:<table>:latest:<id> with its collected_at (unix microseconds) under
// <prefix>:<table>:collected:<id>, the append log under
// <prefix>:<table>:log:<id> and the id index in the set <prefix>:<table>:ids.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedisStore parses a redis:// URL and checks the connection.
func OpenRedisStore(ctx context.Context, url string, prefix string) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis cache requires a URL")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "content-cache"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(platform model.Platform, kind string, id string) string {
	if id == "" {
		return fmt.Sprintf("%s:%s:%s", s.prefix, platform.Table(), kind)
	}
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, platform.Table(), kind, id)
}

func (s *RedisStore) Lookup(ctx context.Context, platform model.Platform, sourceURL string) (*model.CacheRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.key(platform, "latest", model.RecordID(sourceURL))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	var record model.CacheRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("cache lookup: decode: %w", err)
	}
	return &record, true, nil
}

// Upsert overwrites the latest key and drops any append log of the URL.
func (s *RedisStore) Upsert(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.Platform, "latest", record.Id), payload, 0)
		pipe.Set(ctx, s.key(record.Platform, "collected", record.Id), record.CollectedAt.UnixMicro(), 0)
		pipe.Del(ctx, s.key(record.Platform, "log", record.Id))
		pipe.SAdd(ctx, s.key(record.Platform, "ids", ""), record.Id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// appendScript pushes the record onto the log and replaces the latest key
// only when the record is not older than the one stored there.
//
//	KEYS: log, latest, collected, ids    ARGV: payload, collected_at, id
var appendScript = redis.NewScript(`
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[3])
local current = redis.call('GET', KEYS[3])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[2])
return 1
`)

// Append pushes the record onto the URL's log. The latest key follows the
// most recent collected_at, not the order of the calls.
func (s *RedisStore) Append(ctx context.Context, record *model.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	keys := []string{
		s.key(record.Platform, "log", record.Id),
		s.key(record.Platform, "latest", record.Id),
		s.key(record.Platform, "collected", record.Id),
		s.key(record.Platform, "ids", ""),
	}
	collected := strconv.FormatInt(record.CollectedAt.UnixMicro(), 10)
	if err := appendScript.Run(ctx, s.client, keys, payload, collected, record.Id).Err(); err != nil {
		return fmt.Errorf("cache append: %w", err)
	}
	return nil
}

func (s *RedisStore) KnownIDs(ctx context.Context, platform model.Platform) (map[string]bool, error) {
	ids, err := s.client.SMembers(ctx, s.key(platform, "ids", "")).Result()
	if err != nil {
		return nil, fmt.Errorf("known ids: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
