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

package workflow

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/commands"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/ports"
)

// UploadTranscriptionWorkflow transcribes a user-supplied media file:
//
//	stage upload -> ffmpeg audio -> speech-to-text
//
// Uploads have no permalink, so nothing is cached.
type UploadTranscriptionWorkflow struct {
	cor.BaseCommand
	config        *cloud.Config
	storageClient *storage.Client
	transcriber   ports.Transcriber
	chain         cor.Chain
}

func NewUploadTranscriptionWorkflow(config *cloud.Config, storageClient *storage.Client, transcriber ports.Transcriber) *UploadTranscriptionWorkflow {
	out := &UploadTranscriptionWorkflow{
		BaseCommand:   *cor.NewBaseCommand("upload-transcription-workflow"),
		config:        config,
		storageClient: storageClient,
		transcriber:   transcriber,
	}
	out.initializeChain()
	return out
}

func (w *UploadTranscriptionWorkflow) initializeChain() {
	ex := w.config.Extraction
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewUploadedMediaReader("uploaded-media-reader", w.storageClient, ex.MaxUploadBytes, ex.TempDir))
	out.AddCommand(commands.NewAudioExtractor("upload-audio-extractor", ex.FfmpegPath, ex.AudioBitrate, ex.MaxAudioBytes, ex.TempDir))
	out.AddCommand(commands.NewSpeechTranscriber("upload-speech-transcriber", w.transcriber))
	w.chain = out
}

// Execute runs the chain and leaves a model.Transcript under
// commands.ParamResult.
func (w *UploadTranscriptionWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if context.HasErrors() {
		w.GetErrorCounter().Add(context.GetContext(), 1)
		return
	}
	w.Succeed(context)
	name, _ := context.Get(commands.ParamUploadName).(string)
	text, _ := context.Get(commands.ParamTranscript).(string)
	context.Add(commands.ParamResult, &model.Transcript{SourceURL: name, Text: text, Source: model.SourceUpload})
}

// Transcribe runs the workflow for one upload and removes every temporary
// file before returning.
func (w *UploadTranscriptionWorkflow) Transcribe(ctx context.Context, media *commands.UploadedMedia) (*model.Transcript, error) {
	if media == nil || media.Body == nil {
		return nil, model.NewValidationError("file", "required")
	}
	chCtx := cor.NewBaseContextWith(ctx)
	defer chCtx.Close()

	chCtx.Add(cor.CtxIn, media)
	w.Execute(chCtx)
	if err := cor.JoinErrors(chCtx); err != nil {
		return nil, extractionError(media.FileName, err)
	}
	out, _ := chCtx.Get(commands.ParamResult).(*model.Transcript)
	return out, nil
}
