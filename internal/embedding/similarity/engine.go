package similarity

import (
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
)

// Engine answers similarity queries against a single Store. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	store *vocab.Store
}

// New returns an Engine over store.
func New(store *vocab.Store) *Engine {
	return &Engine{store: store}
}

// Store returns the vocabulary the engine reads.
func (e *Engine) Store() *vocab.Store {
	return e.store
}

// MostSimilar returns up to topN tokens closest to token, excluding token
// itself. A topN larger than the remaining vocabulary is capped.
func (e *Engine) MostSimilar(token string, topN int) ([]Match, error) {
	if topN <= 0 {
		return nil, apperrors.InvalidInputf("topn must be a positive integer, got %d", topN)
	}
	q, err := e.store.Lookup(token)
	if err != nil {
		return nil, err
	}
	if q.Norm == 0 {
		return nil, apperrors.Degenerate(q.Token)
	}
	return e.rank(q.Vector, q.Norm, map[string]struct{}{token: {}}, topN)
}

// Nearest ranks the vocabulary against an arbitrary target vector, skipping
// every token in exclude.
func (e *Engine) Nearest(target []float32, exclude map[string]struct{}, topN int) ([]Match, error) {
	if topN <= 0 {
		return nil, apperrors.InvalidInputf("topn must be a positive integer, got %d", topN)
	}
	if len(target) != e.store.Dimension() {
		return nil, apperrors.InvalidInputf("target has dimension %d, expected %d", len(target), e.store.Dimension())
	}
	norm := vocab.Norm(target)
	if norm == 0 {
		return nil, apperrors.InvalidInputf("target vector has zero norm")
	}
	return e.rank(target, norm, exclude, topN)
}

// Pairwise returns the percentage-scaled cosine similarity of two tokens.
// When either is missing, the error names every missing token.
func (e *Engine) Pairwise(a, b string) (float64, error) {
	entries, err := e.store.LookupAll([]string{a, b})
	if err != nil {
		return 0, err
	}
	ea, eb := entries[0], entries[1]
	if ea.Norm == 0 {
		return 0, apperrors.Degenerate(ea.Token)
	}
	if eb.Norm == 0 {
		return 0, apperrors.Degenerate(eb.Token)
	}
	return cosine(ea.Vector, eb.Vector, ea.Norm, eb.Norm) * Scale, nil
}

func (e *Engine) rank(target []float32, norm float64, exclude map[string]struct{}, topN int) ([]Match, error) {
	if topN > e.store.Size() {
		topN = e.store.Size()
	}
	top := newTopK(topN)
	for _, entry := range e.store.Entries() {
		if _, skip := exclude[entry.Token]; skip {
			continue
		}
		if entry.Norm == 0 {
			return nil, apperrors.Degenerate(entry.Token)
		}
		top.push(Match{
			Token: entry.Token,
			Score: cosine(target, entry.Vector, norm, entry.Norm) * Scale,
		})
	}
	return top.result(), nil
}
