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

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
)

// AudioArchive stores extracted audio for later playback.
type AudioArchive interface {
	Enabled() bool
	Upload(ctx context.Context, sourceURL string, audioPath string) (string, error)
}

// AudioArchiver copies the transcribed audio to Cloud Storage. Archiving is
// best effort: a failed upload is logged and reported as a warning, never as
// a failed extraction.
type AudioArchiver struct {
	cor.BaseCommand
	archive AudioArchive
}

func NewAudioArchiver(name string, archive AudioArchive) *AudioArchiver {
	out := &AudioArchiver{BaseCommand: *cor.NewBaseCommand(name), archive: archive}
	out.InputParamName = ParamAudioFile
	return out
}

func (c *AudioArchiver) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		c.archive != nil && c.archive.Enabled() &&
		stringFrom(context, ParamTranscript) != ""
}

func (c *AudioArchiver) Execute(context cor.Context) {
	req := requestFrom(context)
	if req == nil {
		return
	}
	uri, err := c.archive.Upload(context.GetContext(), req.URL, stringFrom(context, ParamAudioFile))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("audio archive failed", "url", req.URL, "error", err)
		addWarning(context, c.GetName()+": "+err.Error())
		return
	}
	c.Succeed(context)
	context.Add(ParamArchiveURI, uri)
}
