// Package testutil provides in-memory collaborators for tests: a scripted
// completion engine and a stub search provider.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
)

type rule struct {
	substr   string
	response string
}

// ScriptedEngine is a model.Engine that routes responses by substring match
// on the prompt, so tests stay independent of call order. The first matching
// rule wins; unmatched prompts get the fallback response.
type ScriptedEngine struct {
	mu       sync.Mutex
	rules    []rule
	fallback string
	err      error
	calls    []model.Request
}

// NewScriptedEngine constructs an engine with an empty script.
func NewScriptedEngine() *ScriptedEngine {
	return &ScriptedEngine{}
}

// Respond registers a response for prompts containing substr.
func (e *ScriptedEngine) Respond(substr, response string) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule{substr: substr, response: response})
	return e
}

// Fallback sets the response for prompts no rule matches.
func (e *ScriptedEngine) Fallback(response string) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = response
	return e
}

// Fail makes every subsequent call return err.
func (e *ScriptedEngine) Fail(err error) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	return e
}

// Calls returns a copy of all requests seen so far.
func (e *ScriptedEngine) Calls() []model.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Request, len(e.calls))
	copy(out, e.calls)
	return out
}

// Complete implements model.Engine.
func (e *ScriptedEngine) Complete(_ context.Context, req model.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, req)

	if e.err != nil {
		return "", e.err
	}
	for _, r := range e.rules {
		if strings.Contains(req.Prompt, r.substr) {
			return r.response, nil
		}
	}
	if e.fallback != "" {
		return e.fallback, nil
	}
	return "", errors.New("scripted engine: no rule matched prompt")
}

// StubSearch is a search.Provider backed by fixed fixtures. Queries without
// an entry in Results fall back to Default; pages without an entry in Pages
// return a fetch error.
type StubSearch struct {
	mu      sync.Mutex
	Results map[string][]search.Result
	Default []search.Result
	Pages   map[string]*search.Page
	Err     error
	queries []string
}

// NewStubSearch returns a provider serving one generic result per query.
func NewStubSearch() *StubSearch {
	return &StubSearch{
		Default: []search.Result{
			{Title: "Example Result", URL: "https://example.com/a", Snippet: "example snippet", Source: "stub"},
		},
	}
}

// Queries returns a copy of all search queries seen so far.
func (s *StubSearch) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// Search implements search.Provider.
func (s *StubSearch) Search(_ context.Context, query string, maxResults int) ([]search.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	err := s.Err
	results, ok := s.Results[query]
	if !ok {
		results = s.Default
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// FetchPage implements search.Provider.
func (s *StubSearch) FetchPage(_ context.Context, url string) (*search.Page, error) {
	s.mu.Lock()
	page, ok := s.Pages[url]
	s.mu.Unlock()

	if !ok {
		return nil, &core.FetchError{URL: url, Err: errors.New("no fixture")}
	}
	return page, nil
}
