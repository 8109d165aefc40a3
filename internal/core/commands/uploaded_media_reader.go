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

// This file defines the entry command of the upload transcription workflow.
//
// Logic Flow:
// An upload arrives either as a Cloud Storage object-finalize notification
// (the raw Pub/Sub JSON), as a GCSObject handle, or as an UploadedMedia
// stream from the HTTP API or the CLI. In every case the bytes are copied to
// a local temporary file, capped at the configured upload size, and the path
// is published under ParamMediaFile so the audio commands can take over.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// UploadedMedia is a media stream supplied directly by a user.
type UploadedMedia struct {
	FileName string
	Body     io.Reader
}

// ParamUploadName carries the original file name or gs:// URI of an upload.
const ParamUploadName = "__UPLOAD_NAME__"

// UploadedMediaReader stages an uploaded media file on local disk.
type UploadedMediaReader struct {
	cor.BaseCommand
	client   *storage.Client
	maxBytes int64
	tempDir  string
}

func NewUploadedMediaReader(name string, client *storage.Client, maxBytes int64, tempDir string) *UploadedMediaReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	return &UploadedMediaReader{BaseCommand: *cor.NewBaseCommand(name), client: client, maxBytes: maxBytes, tempDir: tempDir}
}

func (c *UploadedMediaReader) Execute(context cor.Context) {
	var (
		body io.Reader
		name string
	)
	switch in := context.Get(c.GetInputParam()).(type) {
	case *UploadedMedia:
		body, name = in.Body, in.FileName
	case string:
		obj, err := parseFinalizeNotification(in)
		if err != nil {
			c.Fail(context, err)
			return
		}
		reader, err := c.openObject(context, obj)
		if err != nil {
			c.Fail(context, err)
			return
		}
		defer func() { _ = reader.Close() }()
		body, name = reader, obj.URI()
	case *cloud.GCSObject:
		reader, err := c.openObject(context, in)
		if err != nil {
			c.Fail(context, err)
			return
		}
		defer func() { _ = reader.Close() }()
		body, name = reader, in.URI()
	default:
		c.Fail(context, fmt.Errorf("%w: unsupported upload type %T", model.ErrValidation, in))
		return
	}
	if body == nil {
		c.Fail(context, model.NewValidationError("file", "required"))
		return
	}

	tempFile, err := os.CreateTemp(c.tempDir, MediaTempFilePrefix+"*"+filepath.Ext(name))
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create temp file: %w", err))
		return
	}
	context.AddTempFile(tempFile.Name())
	written, err := io.Copy(tempFile, io.LimitReader(body, c.maxBytes+1))
	_ = tempFile.Close()
	switch {
	case err != nil:
		c.Fail(context, fmt.Errorf("failed to stage upload %s, %d bytes written: %w", name, written, err))
		return
	case written == 0:
		c.Fail(context, model.NewValidationError("file", "empty upload"))
		return
	case written > c.maxBytes:
		c.Fail(context, model.NewValidationError("file", fmt.Sprintf("upload exceeds %d bytes", c.maxBytes)))
		return
	}

	c.Succeed(context)
	slog.Info("upload staged", "name", name, "path", tempFile.Name(), "bytes", written)
	context.Add(ParamUploadName, name)
	context.Add(ParamMediaFile, tempFile.Name())
}

func (c *UploadedMediaReader) openObject(context cor.Context, obj *cloud.GCSObject) (*storage.Reader, error) {
	if c.client == nil {
		return nil, fmt.Errorf("no storage client to read %s", obj.URI())
	}
	reader, err := c.client.Bucket(obj.Bucket).Object(obj.Name).NewReader(context.GetContext())
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS reader for %s: %w", obj.URI(), err)
	}
	return reader, nil
}

// parseFinalizeNotification accepts the notification JSON or a gs:// URI.
func parseFinalizeNotification(in string) (*cloud.GCSObject, error) {
	if obj, err := cloud.ParseGCSURI(in); err == nil {
		return obj, nil
	}
	var msg cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed storage notification: %w", model.ErrValidation, err)
	}
	if msg.Bucket == "" || msg.Name == "" {
		return nil, model.NewValidationError("notification", "bucket and name are required")
	}
	return &cloud.GCSObject{Bucket: msg.Bucket, Name: msg.Name, MIMEType: msg.ContentType}, nil
}
