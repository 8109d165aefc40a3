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

// This file holds the Cloud Storage types shared by the upload path: the
// object-finalize notification Cloud Storage publishes to Pub/Sub and the
// reduced GCSObject handle passed between commands.
package cloud

import (
	"fmt"
	"strings"
)

// GCSPubSubNotification is the JSON payload of an OBJECT_FINALIZE
// notification. Only the fields the upload workflow reads are mapped.
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	ContentType string            `json:"contentType"`
	Size        string            `json:"size"`
	TimeCreated string            `json:"timeCreated"`
	MetaData    map[string]string `json:"metadata"`
}

// GCSObject identifies one object in Cloud Storage.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI returns the gs:// form of the object.
func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI splits a gs://bucket/object URI.
func ParseGCSURI(uri string) (*GCSObject, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return nil, fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return nil, fmt.Errorf("gs:// uri needs a bucket and an object: %q", uri)
	}
	return &GCSObject{Bucket: bucket, Name: name}, nil
}
