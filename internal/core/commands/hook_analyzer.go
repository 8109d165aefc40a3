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

package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// HookAnalyst summarizes the opening hook of a transcript.
type HookAnalyst interface {
	AnalyzeHook(ctx context.Context, transcript string) (string, error)
}

// HookAnalyzer annotates fresh transcripts with their hook before they are
// cached. It never fails the workflow; on error the hook is stored as
// model.NoHook.
type HookAnalyzer struct {
	cor.BaseCommand
	analyst HookAnalyst
}

func NewHookAnalyzer(name string, analyst HookAnalyst) *HookAnalyzer {
	out := &HookAnalyzer{BaseCommand: *cor.NewBaseCommand(name), analyst: analyst}
	out.InputParamName = ParamTranscript
	return out
}

func (c *HookAnalyzer) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && c.analyst != nil && !cacheHit(context)
}

func (c *HookAnalyzer) Execute(context cor.Context) {
	hook, err := c.analyst.AnalyzeHook(context.GetContext(), stringFrom(context, ParamTranscript))
	hook = strings.TrimSpace(hook)
	if err != nil || hook == "" {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		if err != nil {
			slog.Warn("hook analysis failed", "error", err)
			addWarning(context, c.GetName()+": "+err.Error())
		}
		context.Add(ParamHook, model.NoHook)
		return
	}
	c.Succeed(context)
	context.Add(ParamHook, hook)
}
