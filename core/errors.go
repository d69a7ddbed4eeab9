// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyID indicates the Id field is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyPassage indicates the Passage field is empty.
	ErrEmptyPassage = errors.New("passage cannot be empty")

	// ErrMissingMetadata indicates a required metadata key is absent.
	ErrMissingMetadata = errors.New("missing required metadata")
)

// Retrieval errors
var (
	// ErrEmptyCorpus indicates that no records matched the scope filter.
	// Callers treat it as "no results", never as a failure.
	ErrEmptyCorpus = errors.New("no records match scope filter")

	// ErrInconsistentIndex indicates the parallel sequences inside a lexical
	// index have diverged. It is a programming error.
	ErrInconsistentIndex = errors.New("lexical index sequences are misaligned")
)

// VectorStoreError reports a failure of the external vector store
// (connectivity, timeout, missing collection).
type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string {
	return "vector store " + e.Op + ": " + e.Err.Error()
}

func (e *VectorStoreError) Unwrap() error {
	return e.Err
}

// EncoderError reports a failure of the dense encoder.
type EncoderError struct {
	Err error
}

func (e *EncoderError) Error() string {
	return "encoder: " + e.Err.Error()
}

func (e *EncoderError) Unwrap() error {
	return e.Err
}
