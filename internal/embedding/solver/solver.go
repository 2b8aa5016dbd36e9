// Package solver answers vector-arithmetic analogy and odd-one-out queries
// on top of the similarity engine.
package solver

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
)

// MinOutlierTokens is the smallest number of distinct tokens for which an
// odd one out is defined.
const MinOutlierTokens = 3

// Solver answers analogy and odd-one-out queries over one vocabulary.
type Solver struct {
	engine *similarity.Engine
	store  *vocab.Store
}

// New returns a Solver that ranks through engine.
func New(engine *similarity.Engine) *Solver {
	return &Solver{engine: engine, store: engine.Store()}
}

// Analogy ranks the vocabulary against sum(positive) - sum(negative). No
// input token is ever returned.
func (s *Solver) Analogy(positive, negative []string, topN int) ([]similarity.Match, error) {
	if len(positive) == 0 && len(negative) == 0 {
		return nil, apperrors.InvalidInputf("analogy needs at least one positive or negative token")
	}
	if topN <= 0 {
		return nil, apperrors.InvalidInputf("topn must be a positive integer, got %d", topN)
	}

	// Resolve in positive-then-negative order; the first miss is reported.
	resolve := func(tokens []string) ([]vocab.Entry, error) {
		out := make([]vocab.Entry, 0, len(tokens))
		for _, t := range tokens {
			e, err := s.store.Lookup(t)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}
	pos, err := resolve(positive)
	if err != nil {
		return nil, err
	}
	neg, err := resolve(negative)
	if err != nil {
		return nil, err
	}

	target := make([]float32, s.store.Dimension())
	exclude := make(map[string]struct{}, len(pos)+len(neg))
	for _, e := range pos {
		for i, x := range e.Vector {
			target[i] += x
		}
		exclude[e.Token] = struct{}{}
	}
	for _, e := range neg {
		for i, x := range e.Vector {
			target[i] -= x
		}
		exclude[e.Token] = struct{}{}
	}
	return s.engine.Nearest(target, exclude, topN)
}

// Outlier returns the token least similar to the centroid of tokens.
func (s *Solver) Outlier(tokens []string) (string, error) {
	scores, err := s.CentroidSimilarities(tokens)
	if err != nil {
		return "", err
	}
	return scores[0].Token, nil
}

// CentroidSimilarities returns every distinct input token with its
// percentage-scaled cosine similarity to the centroid, least similar first.
// Equal scores are ordered by ascending token. Repeated tokens count once.
func (s *Solver) CentroidSimilarities(tokens []string) ([]similarity.Match, error) {
	distinct := dedupe(tokens)
	if len(distinct) < MinOutlierTokens {
		return nil, apperrors.InvalidInputf("odd one out needs at least %d distinct tokens, got %d", MinOutlierTokens, len(distinct))
	}
	entries, err := s.store.LookupAll(distinct)
	if err != nil {
		return nil, err
	}

	centroid := make([]float64, s.store.Dimension())
	for _, e := range entries {
		if e.Norm == 0 {
			return nil, apperrors.Degenerate(e.Token)
		}
		for i, x := range e.Vector {
			centroid[i] += float64(x)
		}
	}
	mean := make([]float32, len(centroid))
	for i := range centroid {
		mean[i] = float32(centroid[i] / float64(len(entries)))
	}
	meanNorm := vocab.Norm(mean)
	if meanNorm == 0 {
		return nil, apperrors.InvalidInputf("centroid of %v has zero norm", distinct)
	}

	scores := make([]similarity.Match, len(entries))
	for i, e := range entries {
		c, err := similarity.Cosine(e.Vector, mean)
		if err != nil {
			return nil, err
		}
		scores[i] = similarity.Match{Token: e.Token, Score: c * similarity.Scale}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score < scores[j].Score
		}
		return scores[i].Token < scores[j].Token
	})
	return scores, nil
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
