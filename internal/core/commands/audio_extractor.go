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
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
)

const (
	DefaultAudioBitrate  = "32k"
	AudioTempFilePrefix  = "audio-"
	DefaultMaxAudioBytes = 25 << 20
)

// AudioExtractionArgs builds the ffmpeg arguments that drop the video stream
// and encode a mono mp3 small enough for the speech API upload limit.
//   - -y: overwrite the (pre-created) output file.
//   - -vn: no video. -ac 1: mono. -b:a: target bitrate.
func AudioExtractionArgs(input, output, bitrate string) []string {
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-vn", "-ac", "1", "-b:a", bitrate,
		"-f", "mp3", output,
	}
}

// AudioExtractor runs ffmpeg over the downloaded media and publishes the mp3
// under ParamAudioFile.
type AudioExtractor struct {
	cor.BaseCommand
	commandPath string
	bitrate     string
	maxBytes    int64
	tempDir     string
}

func NewAudioExtractor(name string, commandPath string, bitrate string, maxBytes int64, tempDir string) *AudioExtractor {
	if commandPath == "" {
		commandPath = "ffmpeg"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	out := &AudioExtractor{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		bitrate:     bitrate,
		maxBytes:    maxBytes,
		tempDir:     tempDir,
	}
	out.InputParamName = ParamMediaFile
	return out
}

func (c *AudioExtractor) Execute(context cor.Context) {
	input := stringFrom(context, ParamMediaFile)

	tempFile, err := os.CreateTemp(c.tempDir, AudioTempFilePrefix+"*.mp3")
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create temp file: %w", err))
		return
	}
	_ = tempFile.Close()
	context.AddTempFile(tempFile.Name())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(context.GetContext(), c.commandPath, AudioExtractionArgs(input, tempFile.Name(), c.bitrate)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.Fail(context, fmt.Errorf("error running ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String())))
		return
	}

	info, err := os.Stat(tempFile.Name())
	if err != nil {
		c.Fail(context, err)
		return
	}
	if info.Size() == 0 {
		c.Fail(context, fmt.Errorf("ffmpeg produced no audio for %s", input))
		return
	}
	if info.Size() > c.maxBytes {
		c.Fail(context, fmt.Errorf("extracted audio is %d bytes, limit is %d", info.Size(), c.maxBytes))
		return
	}
	c.Succeed(context)
	context.Add(ParamAudioFile, tempFile.Name())
}
