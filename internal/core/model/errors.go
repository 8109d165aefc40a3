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

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input or a generated document that does
	// not match its schema.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a cache miss surfaced to callers.
	ErrNotFound = errors.New("not found")
	// ErrExtractionFailed is returned when no extraction strategy produced a transcript.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrGenerationFailed is returned when a generative call could not produce
	// a valid document within its attempt budget.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrTransient marks failures worth retrying (rate limits, 5xx, timeouts).
	ErrTransient = errors.New("transient failure")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
