// Package ingestion populates a passage collection.
//
// A Pipeline turns chunked passages into records, embeds them in batches on
// a worker pool and stores them. A Reembedder walks an existing collection
// and replaces every stored vector, which is needed after switching the
// embedding model. Both normalize vectors to unit length and retry embedding
// calls with exponential backoff.
package ingestion
