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
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// ArchiveService stores extracted audio in Cloud Storage and hands out
// time-limited links to it.
type ArchiveService struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient // Optional; signs URLs without a local key.
	SignerEmail   string
	Bucket        string
	Prefix        string
}

// Enabled reports whether an archive bucket is configured.
func (s *ArchiveService) Enabled() bool {
	return s != nil && s.StorageClient != nil && s.Bucket != ""
}

// ObjectName returns the archive object name of a source URL.
func (s *ArchiveService) ObjectName(sourceURL string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "audio"
	}
	return path.Join(prefix, model.RecordID(sourceURL)+".mp3")
}

// Upload copies the local audio file to the archive and returns its gs:// URI.
func (s *ArchiveService) Upload(ctx context.Context, sourceURL string, audioPath string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("audio archive is not configured")
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	name := s.ObjectName(sourceURL)
	// Cancelling the writer's context aborts the upload without finalizing
	// a partial object.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.StorageClient.Bucket(s.Bucket).Object(name).NewWriter(writeCtx)
	writer.ContentType = "audio/mpeg"
	writer.Metadata = map[string]string{"source_url": model.NormalizeURL(sourceURL)}
	if _, err := io.Copy(writer, file); err != nil {
		cancel()
		_ = writer.Close()
		return "", fmt.Errorf("archive upload gs://%s/%s: %w", s.Bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("archive upload gs://%s/%s: %w", s.Bucket, name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.Bucket, name), nil
}

// SignedURL returns a V4 GET URL for the archived audio of sourceURL. It
// returns model.ErrNotFound when nothing was archived.
func (s *ArchiveService) SignedURL(ctx context.Context, sourceURL string, expires time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("audio archive is not configured")
	}
	name := s.ObjectName(sourceURL)
	bucket := s.StorageClient.Bucket(s.Bucket)
	if _, err := bucket.Object(name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: no archived audio for %s", model.ErrNotFound, sourceURL)
		}
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := bucket.SignedURL(name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", s.Bucket, name, err)
	}
	return u, nil
}

