// Package search defines the web retrieval collaborator consumed by
// research workers, together with a SearxNG-backed implementation. Result
// ranking and HTML-to-text fidelity are explicit non-goals; the provider
// returns whatever the upstream engine ranks, lightly cleaned.
package search

import "context"

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// Page is fetched page content. Content is plain text; Markdown keeps a
// minimally structured rendition for prompts.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
}

// Provider is the search collaborator. Both operations fail with
// *core.FetchError on transport faults and timeouts.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	FetchPage(ctx context.Context, url string) (*Page, error)
}
