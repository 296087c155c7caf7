// Package memory provides tenant-scoped note storage with BM25
// retrieval. Each tenant searches only its own namespace.
package memory

import "context"

// Note is a stored memory entry.
type Note struct {
	ID      string
	Tenant  string
	Content string
	Source  string
	Tags    []string
}

// Result is a note with its retrieval score.
type Result struct {
	Note
	Score float32
}

// Searcher answers memory queries for a tenant namespace.
type Searcher interface {
	Search(ctx context.Context, tenant, query string, limit int) ([]Result, error)
}

// Store extends Searcher with writes.
type Store interface {
	Searcher
	Save(ctx context.Context, note Note) (string, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
