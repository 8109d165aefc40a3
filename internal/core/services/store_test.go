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

package services_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/services"
	"github.com/redis/go-redis/v9"
	test "github.com/jaycherian/gcp-go-content-extractor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reelURL = "https://www.instagram.com/reel/C1a2b3c4d5/"

func record(transcript string, collectedAt time.Time) *model.CacheRecord {
	item := &model.ContentItem{AuthorHandle: "creator", ViewCount: 1200, CaptionText: "caption"}
	out := model.NewCacheRecord(reelURL, model.PlatformInstagramReel, item,
		model.Transcript{Text: transcript, Source: model.SourceSpeechToText}, "")
	out.CollectedAt = collectedAt
	return out
}

// storeContract runs the behaviour every cache backend must share.
func storeContract(t *testing.T, open func(t *testing.T) ports.CacheStore) {
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("miss", func(t *testing.T) {
		store := open(t)
		got, found, err := store.Lookup(ctx, model.PlatformInstagramReel, reelURL)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Upsert(ctx, record("first", base)))
		require.NoError(t, store.Upsert(ctx, record("second", base.Add(time.Minute))))

		got, found, err := store.Lookup(ctx, model.PlatformInstagramReel, reelURL)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "second", got.Transcript)
		assert.Equal(t, model.NoHook, got.Hook)
		assert.Equal(t, "creator", got.AuthorHandle)
		assert.Equal(t, int64(1200), got.ViewCount)
		assert.Equal(t, model.RecordID(reelURL), got.Id)
	})

	t.Run("append keeps history and latest wins", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Append(ctx, record("newest", base.Add(2*time.Hour))))
		require.NoError(t, store.Append(ctx, record("oldest", base)))

		got, found, err := store.Lookup(ctx, model.PlatformInstagramReel, reelURL)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "newest", got.Transcript)
	})

	t.Run("lookup is exact", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Upsert(ctx, record("text", base)))

		_, found, err := store.Lookup(ctx, model.PlatformInstagramReel, reelURL+"?igsh=abc")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = store.Lookup(ctx, model.PlatformInstagramReel, "  https://www.instagram.com/reel/C1a2b3c4d5")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("tables are per platform", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Upsert(ctx, record("text", base)))

		_, found, err := store.Lookup(ctx, model.PlatformYouTube, reelURL)
		require.NoError(t, err)
		assert.False(t, found)

		ids, err := store.KnownIDs(ctx, model.PlatformInstagramCarousel)
		require.NoError(t, err)
		assert.True(t, ids[model.RecordID(reelURL)])

		ids, err = store.KnownIDs(ctx, model.PlatformYouTube)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("rejects empty transcript", func(t *testing.T) {
		store := open(t)
		err := store.Upsert(ctx, record("  ", base))
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ports.CacheStore {
		return services.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ports.CacheStore {
		store, err := services.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache", "extractions.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ports.CacheStore {
		server := miniredis.RunT(t)
		store := services.NewRedisStore(redis.NewClient(&redis.Options{Addr: server.Addr()}), "test-cache")
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestOpenRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	url := "redis://" + server.Addr() + "/0"
	store, err := services.OpenRedisStore(context.Background(), url, "")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Append(context.Background(), record("text", time.Now().UTC())))
	assert.True(t, server.Exists("content-cache:instagram:latest:"+model.RecordID(reelURL)))

	server.Close()
	_, err = services.OpenRedisStore(context.Background(), url, "")
	assert.Error(t, err)
}

func TestSQLiteStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, err := services.OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "extractions.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rec := record(fmt.Sprintf("take %d", n), time.Now().UTC())
			assert.NoError(t, store.Append(ctx, rec))
		}(n)
	}
	wg.Wait()

	got, found, err := store.Lookup(ctx, model.PlatformInstagramReel, reelURL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, got.Transcript, "take ")
}

func TestMemoryStoreCount(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, ports.Save(ctx, store, ports.WriteModeAppend, record("a", now)))
	require.NoError(t, ports.Save(ctx, store, ports.WriteModeAppend, record("b", now.Add(time.Second))))
	assert.Equal(t, 2, store.Count(model.PlatformInstagramReel, reelURL))

	require.NoError(t, ports.Save(ctx, store, ports.WriteModeUpsert, record("c", now.Add(2*time.Second))))
	assert.Equal(t, 1, store.Count(model.PlatformInstagramReel, reelURL))
}

func TestNewCacheStore(t *testing.T) {
	ctx := context.Background()
	config := test.GetConfig()

	config.Cache.Backend = "memory"
	store, err := services.NewCacheStore(ctx, config, nil)
	require.NoError(t, err)
	assert.IsType(t, &services.MemoryStore{}, store)

	config.Cache.Backend = "sqlite"
	config.Cache.DSN = filepath.Join(t.TempDir(), "cache.db")
	store, err = services.NewCacheStore(ctx, config, nil)
	require.NoError(t, err)
	assert.IsType(t, &services.SQLStore{}, store)
	assert.NoError(t, store.Close())

	config.Cache.Backend = "bigquery"
	_, err = services.NewCacheStore(ctx, config, nil)
	assert.Error(t, err)

	config.Cache.Backend = "dynamo"
	_, err = services.NewCacheStore(ctx, config, nil)
	assert.Error(t, err)
}

func TestParseWriteMode(t *testing.T) {
	for in, want := range map[string]ports.WriteMode{
		"":        ports.WriteModeUpsert,
		"upsert":  ports.WriteModeUpsert,
		" APPEND": ports.WriteModeAppend,
	} {
		got, err := services.ParseWriteMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := services.ParseWriteMode("merge")
	assert.Error(t, err)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetriable(t *testing.T) {
	assert.False(t, services.IsRetriable(nil))
	assert.True(t, services.IsRetriable(fmt.Errorf("groq: %w", model.ErrTransient)))
	assert.True(t, services.IsRetriable(context.DeadlineExceeded))
	assert.True(t, services.IsRetriable(&net.OpError{Op: "read", Err: timeoutError{}}))
	assert.False(t, services.IsRetriable(context.Canceled))
	assert.False(t, services.IsRetriable(model.NewValidationError("prompt", "too long")))
	assert.False(t, services.IsRetriable(fmt.Errorf("401 unauthorized")))
}
