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
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// SpeechTranscriber submits the extracted audio to the speech-to-text API.
type SpeechTranscriber struct {
	cor.BaseCommand
	transcriber ports.Transcriber
}

func NewSpeechTranscriber(name string, transcriber ports.Transcriber) *SpeechTranscriber {
	out := &SpeechTranscriber{BaseCommand: *cor.NewBaseCommand(name), transcriber: transcriber}
	out.InputParamName = ParamAudioFile
	return out
}

func (c *SpeechTranscriber) Execute(context cor.Context) {
	path := stringFrom(context, ParamAudioFile)
	text, err := c.transcriber.Transcribe(context.GetContext(), path)
	if err != nil {
		c.Fail(context, fmt.Errorf("speech-to-text: %w", err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.Fail(context, fmt.Errorf("%w: speech-to-text returned no text", cor.ErrNoResult))
		return
	}
	c.Succeed(context)
	slog.Info("audio transcribed", "path", path, "chars", len(text))
	setTranscript(context, text, model.SourceSpeechToText)
}
