// Package vocab holds the immutable in-memory vocabulary: every token with its
// embedding vector and cached Euclidean norm.
//
// A Store is built once and never mutated, so any number of goroutines may
// read it without synchronisation. Loading a new vocabulary means building a
// new Store.
package vocab

import (
	"math"
	"slices"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
)

// Pair is a raw (token, vector) record as produced by an embedding source.
type Pair struct {
	Token  string
	Vector []float32
}

// Entry is a vocabulary token with its vector and precomputed norm.
type Entry struct {
	Token  string
	Vector []float32
	Norm   float64
}

// Store maps tokens to entries. Entries are kept in ascending token order so
// that scans are reproducible.
type Store struct {
	entries []Entry
	index   map[string]int
	dim     int
}

// New builds a Store from pairs. Duplicate tokens are rejected rather than
// resolved: a repeated token means the import is corrupt.
func New(pairs []Pair) (*Store, error) {
	if len(pairs) == 0 {
		return nil, apperrors.InvalidInputf("vocabulary is empty")
	}
	dim := len(pairs[0].Vector)
	if dim == 0 {
		return nil, apperrors.InvalidInputf("token %q has an empty vector", pairs[0].Token)
	}

	seen := make(map[string]struct{}, len(pairs))
	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		if p.Token == "" {
			return nil, apperrors.InvalidInputf("empty token in vocabulary")
		}
		if len(p.Vector) != dim {
			return nil, apperrors.InvalidInputf("token %q has dimension %d, expected %d", p.Token, len(p.Vector), dim)
		}
		for _, x := range p.Vector {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return nil, apperrors.InvalidInputf("token %q has a non-finite component", p.Token)
			}
		}
		if _, dup := seen[p.Token]; dup {
			return nil, apperrors.InvalidInputf("duplicate token %q", p.Token)
		}
		seen[p.Token] = struct{}{}

		vec := make([]float32, dim)
		copy(vec, p.Vector)
		entries = append(entries, Entry{
			Token:  p.Token,
			Vector: vec,
			Norm:   Norm(vec),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Token < entries[j].Token
	})
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Token] = i
	}
	return &Store{entries: entries, index: index, dim: dim}, nil
}

// Lookup returns the entry for an exact token match.
func (s *Store) Lookup(token string) (Entry, error) {
	i, ok := s.index[token]
	if !ok {
		return Entry{}, apperrors.NotFound(token)
	}
	return s.entries[i], nil
}

// Contains reports whether token is in the vocabulary.
func (s *Store) Contains(token string) bool {
	_, ok := s.index[token]
	return ok
}

// LookupAll resolves every token, preserving input order. When any are
// missing the error names each of them once, in input order.
func (s *Store) LookupAll(tokens []string) ([]Entry, error) {
	out := make([]Entry, 0, len(tokens))
	var missing []string
	for _, t := range tokens {
		i, ok := s.index[t]
		if !ok {
			if !slices.Contains(missing, t) {
				missing = append(missing, t)
			}
			continue
		}
		out = append(out, s.entries[i])
	}
	if len(missing) > 0 {
		return nil, apperrors.NotFound(missing...)
	}
	return out, nil
}

// Size returns the number of tokens.
func (s *Store) Size() int { return len(s.entries) }

// Dimension returns the shared vector length.
func (s *Store) Dimension() int { return s.dim }

// Entries returns the entries in ascending token order. Callers must treat
// the slice and its vectors as read-only.
func (s *Store) Entries() []Entry { return s.entries }

// Tokens returns a copy of all tokens in ascending order.
func (s *Store) Tokens() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Token
	}
	return out
}

// Norm returns the Euclidean norm of v, accumulated in float64.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}
