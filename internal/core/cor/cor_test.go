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

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultParam = "__result__"

// stubCommand writes a fixed value, records a fixed error, or both.
type stubCommand struct {
	cor.BaseCommand
	value      string
	err        error
	executable bool
	calls      int
}

func newStub(name, value string, err error) *stubCommand {
	return &stubCommand{BaseCommand: *cor.NewBaseCommand(name), value: value, err: err, executable: true}
}

func (s *stubCommand) IsExecutable(cor.Context) bool { return s.executable }

func (s *stubCommand) Execute(context cor.Context) {
	s.calls++
	if s.err != nil {
		s.Fail(context, s.err)
	}
	if s.value != "" {
		context.Add(resultParam, s.value)
	}
}

func TestFallbackChainStopsAtFirstResult(t *testing.T) {
	first := newStub("first", "", errors.New("boom"))
	second := newStub("second", "hello world", nil)
	third := newStub("third", "never", nil)

	chain := cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(first).AddCommand(second).AddCommand(third)

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "hello world", ctx.Get(resultParam))
	assert.Equal(t, "second", ctx.Get(cor.FallbackWinnerParam))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)

	attempts := ctx.Get(cor.FallbackAttemptsParam).([]error)
	require.Len(t, attempts, 1)
	assert.ErrorContains(t, attempts[0], "first: boom")
}

func TestFallbackChainSkipsNonExecutableStrategies(t *testing.T) {
	skipped := newStub("skipped", "ignored", nil)
	skipped.executable = false
	empty := newStub("empty", "", nil)
	last := newStub("last", "caption text", nil)

	chain := cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(skipped).AddCommand(empty).AddCommand(last)

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	assert.Equal(t, 0, skipped.calls)
	assert.Equal(t, "caption text", ctx.Get(resultParam))
	attempts := ctx.Get(cor.FallbackAttemptsParam).([]error)
	require.Len(t, attempts, 1)
	assert.ErrorIs(t, attempts[0], cor.ErrNoResult)
}

type quietStub struct {
	*stubCommand
}

func (quietStub) QuietMiss() bool { return true }

func TestFallbackChainDoesNotReportQuietMisses(t *testing.T) {
	lookup := quietStub{newStub("lookup", "", nil)}
	last := newStub("last", "fresh text", nil)

	chain := cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(lookup).AddCommand(last)

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, "fresh text", ctx.Get(resultParam))
	assert.Empty(t, ctx.Get(cor.FallbackAttemptsParam))

	failing := quietStub{newStub("lookup", "", errors.New("connection refused"))}
	chain = cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(failing).AddCommand(newStub("last", "fresh text", nil))
	ctx = cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	attempts := ctx.Get(cor.FallbackAttemptsParam).([]error)
	require.Len(t, attempts, 1)
	assert.ErrorContains(t, attempts[0], "connection refused")
}

func TestFallbackChainReportsExhaustion(t *testing.T) {
	chain := cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(newStub("a", "", errors.New("quota exceeded")))
	chain.AddCommand(newStub("b", "   ", nil))

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	require.True(t, ctx.HasErrors())
	err := ctx.GetErrors()["fallback"]
	assert.ErrorIs(t, err, cor.ErrAllStrategiesFailed)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Len(t, ctx.GetErrors(), 1)
}

func TestFallbackChainHonoursCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := newStub("a", "value", nil)
	chain := cor.NewFallbackChain("fallback", resultParam)
	chain.AddCommand(strategy)

	ctx := cor.NewBaseContextWith(parent)
	chain.Execute(ctx)

	assert.Equal(t, 0, strategy.calls)
	assert.ErrorIs(t, ctx.GetErrors()["fallback"], context.Canceled)
}

func TestBaseChainStopsOnError(t *testing.T) {
	first := newStub("first", "", errors.New("bad input"))
	second := newStub("second", "value", nil)

	chain := cor.NewBaseChain("sequential")
	chain.AddCommand(first).AddCommand(second)

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.Equal(t, 0, second.calls)
}

func TestBaseChainContinueOnFailure(t *testing.T) {
	first := newStub("first", "", errors.New("bad input"))
	second := newStub("second", "value", nil)

	chain := cor.NewBaseChain("sequential")
	chain.ContinueOnFailure(true)
	chain.AddCommand(first).AddCommand(second)

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)

	assert.Equal(t, 1, second.calls)
	assert.Equal(t, "value", ctx.Get(resultParam))
}

func TestBaseContextCloseRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.mp4")
	gone := filepath.Join(dir, "already-gone.mp3")
	require.NoError(t, os.WriteFile(kept, []byte("data"), 0o600))

	ctx := cor.NewBaseContextWith(context.Background())
	ctx.AddTempFile(kept)
	ctx.AddTempFile(gone)
	ctx.AddTempFile("")
	assert.Len(t, ctx.GetTempFiles(), 2)

	ctx.Close()

	_, err := os.Stat(kept)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, ctx.GetTempFiles())
}

func TestJoinErrors(t *testing.T) {
	ctx := cor.NewBaseContextWith(context.Background())
	assert.NoError(t, cor.JoinErrors(ctx))

	sentinel := errors.New("sentinel")
	ctx.AddError("cmd", sentinel)
	assert.ErrorIs(t, cor.JoinErrors(ctx), sentinel)

	ctx.RemoveError("cmd")
	assert.False(t, ctx.HasErrors())
}
