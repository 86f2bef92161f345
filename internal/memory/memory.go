// Package memory integrates the external cross-session semantic memory
// service: one-way ingestion of graded outcome narratives, plus free-text
// search. The service is a black box behind the Service interface.
package memory

import "context"

// Entry is one structured narrative pushed to the memory service.
type Entry struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// Snippet is one ranked result of a semantic search.
type Snippet struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Service is the memory collaborator's ingestion and search surface.
// Ingest is assumed idempotent on the service side; duplicate pushes after
// a retry are acceptable.
type Service interface {
	Ingest(ctx context.Context, entry Entry) error
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}
