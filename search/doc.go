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

// Package search provides hybrid lexical and semantic retrieval.
//
// The Searcher combines two independent rankings of the corpus:
//   - Dense search: nearest neighbours of the query embedding
//   - Lexical search: BM25 over the passages selected by the scope filter
//
// Both run concurrently at a fixed candidate depth and are merged with
// reciprocal rank fusion. A Searcher owns its lexical cache; the index is
// rebuilt whenever the scope filter differs from the previous call and
// reused otherwise.
//
//	searcher, err := search.NewSearcher(repo, provider)
//	results, err := searcher.HybridSearch(ctx, "How do I troubleshoot a refrigerant leak?", 5, core.BrandFilter("Carrier"))
package search
