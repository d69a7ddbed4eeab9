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

// Package storage provides the vector store abstraction used by the retriever.
//
// Retrieval only needs the read side, Corpus: nearest-neighbour queries with
// an optional metadata scope filter, and full enumeration in a stable order
// (the lexical index is rebuilt from it). Ingestion tooling uses the wider
// PassageRepository.
//
// # Architecture
//
//   - Corpus: QueryByVector and EnumerateAll
//   - PassageRepository: Corpus plus add, update, get, delete and count
//
// The BadgerDB implementation lives in storage/badger:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	repo, err := badger.NewPassageRepository(backend, "hvac_documents")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context. Long scans check it between
// records so callers can cancel them.
package storage
