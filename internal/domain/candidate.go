// Package domain defines the core value types of the generation and
// tournament pipeline: candidates, the deduplicating candidate pool, judged
// rankings, and the tournament state machine.
package domain

import (
	"encoding/json"
	"strings"
	"sync"
)

// Candidate is one generated text competing in the tournament. Its identity
// is the exact string value, case- and whitespace-sensitive.
type Candidate string

// placeholderSentinels are values that leak out of backends when a field is
// missing. They are never admitted to a pool.
var placeholderSentinels = map[string]struct{}{
	"undefined": {},
	"null":      {},
	"None":      {},
	"<nil>":     {},
}

// String returns the candidate text.
func (c Candidate) String() string { return string(c) }

// Admissible reports whether c may enter a pool: it must contain
// non-whitespace text and must not be a placeholder sentinel.
func (c Candidate) Admissible() bool {
	trimmed := strings.TrimSpace(string(c))
	if trimmed == "" {
		return false
	}
	_, sentinel := placeholderSentinels[trimmed]
	return !sentinel
}

// Candidates converts plain strings to candidates without filtering.
func Candidates(texts ...string) []Candidate {
	out := make([]Candidate, len(texts))
	for i, t := range texts {
		out[i] = Candidate(t)
	}
	return out
}

// Texts converts candidates back to plain strings.
func Texts(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// Dedupe returns the admissible members of cs in first-seen order with
// exact-string duplicates removed.
func Dedupe(cs []Candidate) []Candidate {
	seen := make(map[Candidate]struct{}, len(cs))
	out := make([]Candidate, 0, len(cs))
	for _, c := range cs {
		if !c.Admissible() {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Pool is an append-only set of unique candidates with a stable insertion
// order. All mutation goes through a single mutex, so a Pool may be shared
// by concurrent generation streams.
type Pool struct {
	mu    sync.RWMutex
	items []Candidate
	index map[Candidate]struct{}
}

// NewPool creates an empty pool, optionally seeded with initial candidates.
func NewPool(initial ...Candidate) *Pool {
	p := &Pool{index: make(map[Candidate]struct{}, len(initial))}
	p.Add(initial...)
	return p
}

// Add inserts every admissible candidate not already present and returns the
// ones that were actually added, in argument order.
func (p *Pool) Add(cs ...Candidate) []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	var added []Candidate
	for _, c := range cs {
		if !c.Admissible() {
			continue
		}
		if _, ok := p.index[c]; ok {
			continue
		}
		p.index[c] = struct{}{}
		p.items = append(p.items, c)
		added = append(added, c)
	}
	return added
}

// Contains reports whether c is a member of the pool.
func (p *Pool) Contains(c Candidate) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[c]
	return ok
}

// Len returns the number of members.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Snapshot returns a copy of the members in insertion order. The copy is
// safe to hand to the tournament phase.
func (p *Pool) Snapshot() []Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Candidate, len(p.items))
	copy(out, p.items)
	return out
}

// MarshalMembers serialises the current members as a JSON array of
// trimmed strings, the form sent to the generation backend as context.
func (p *Pool) MarshalMembers() (string, error) {
	p.mu.RLock()
	texts := make([]string, len(p.items))
	for i, c := range p.items {
		texts[i] = strings.TrimSpace(string(c))
	}
	p.mu.RUnlock()

	b, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
