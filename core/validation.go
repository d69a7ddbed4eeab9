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

import "fmt"

// RequiredMetadata lists the metadata keys every Record must carry.
var RequiredMetadata = []string{MetadataFilename, MetadataPageNumber}

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - Passage must not be empty
//   - Metadata must contain every key in RequiredMetadata
//
// NOT validated (populated by ingestion):
//   - Vector (can be empty until embedded)
//   - InsertedAt / UpdatedAt (set by the store)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.Id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}

	if record.Passage == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyPassage)
	}

	for _, key := range RequiredMetadata {
		if _, ok := record.Metadata[key]; !ok {
			return fmt.Errorf("%w: %w: %s", ErrInvalidRecord, ErrMissingMetadata, key)
		}
	}

	return nil
}
