// Package search retrieves tenant knowledge-base passages for grounding
// model answers. Retrieval is best-effort: a failed search degrades to an
// unassisted answer rather than an error.
package search

import "context"

type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
	Source  string  `json:"source,omitempty"`
}

type Provider interface {
	Search(ctx context.Context, query, tenantID string, limit int) ([]Document, error)
}
