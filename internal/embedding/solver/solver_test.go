package solver

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSolver(t *testing.T, pairs []vocab.Pair) *Solver {
	t.Helper()
	store, err := vocab.New(pairs)
	require.NoError(t, err)
	return New(similarity.New(store))
}

// royalty is laid out on (royal, male, female, person) axes.
func royalty(t *testing.T) *Solver {
	return newSolver(t, []vocab.Pair{
		{Token: "king", Vector: []float32{1, 1, 0, 0.2}},
		{Token: "queen", Vector: []float32{1, 0, 1, 0.2}},
		{Token: "man", Vector: []float32{0, 1, 0, 1}},
		{Token: "woman", Vector: []float32{0, 0, 1, 1}},
		{Token: "prince", Vector: []float32{0.8, 0.9, 0, 0.5}},
		{Token: "apple", Vector: []float32{-0.3, 0.1, 0.1, -1}},
	})
}

func TestAnalogy(t *testing.T) {
	s := royalty(t)

	got, err := s.Analogy([]string{"king", "woman"}, []string{"man"}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "queen", got[0].Token)
	assert.InDelta(t, 100, got[0].Score, 1e-4)
}

func TestAnalogyExcludesInputs(t *testing.T) {
	s := royalty(t)

	cases := []struct {
		positive, negative []string
	}{
		{[]string{"king"}, []string{"man"}},
		{[]string{"king", "woman"}, []string{"man"}},
		{[]string{"queen"}, nil},
		{nil, []string{"apple"}},
		{[]string{"prince", "woman"}, []string{"man", "apple"}},
	}
	for _, c := range cases {
		got, err := s.Analogy(c.positive, c.negative, 10)
		require.NoError(t, err)
		for _, m := range got {
			assert.NotContains(t, c.positive, m.Token)
			assert.NotContains(t, c.negative, m.Token)
			assert.GreaterOrEqual(t, m.Score, -100.0)
			assert.LessOrEqual(t, m.Score, 100.0)
		}
		assert.Len(t, got, 6-len(c.positive)-len(c.negative))
	}
}

func TestAnalogyNotFoundReportsFirstMissing(t *testing.T) {
	s := royalty(t)

	_, err := s.Analogy([]string{"king", "duke"}, []string{"earl"}, 1)
	assert.Equal(t, []string{"duke"}, apperrors.MissingTokens(err))

	_, err = s.Analogy([]string{"king"}, []string{"earl", "duke"}, 1)
	assert.Equal(t, []string{"earl"}, apperrors.MissingTokens(err))
}

func TestAnalogyInvalidInput(t *testing.T) {
	s := royalty(t)

	_, err := s.Analogy(nil, nil, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Analogy([]string{"king"}, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Analogy([]string{"king"}, []string{"king"}, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "a zero target has no direction")
}

func TestAnalogyIsDeterministic(t *testing.T) {
	s := royalty(t)

	first, err := s.Analogy([]string{"king", "woman"}, []string{"man"}, 3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Analogy([]string{"king", "woman"}, []string{"man"}, 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOutlierScenario(t *testing.T) {
	s := newSolver(t, []vocab.Pair{
		{Token: "rachel", Vector: []float32{1, 0}},
		{Token: "monica", Vector: []float32{0.9, 0.1}},
		{Token: "joey", Vector: []float32{-1, 0}},
	})

	got, err := s.Outlier([]string{"rachel", "monica", "joey"})
	require.NoError(t, err)
	assert.Equal(t, "joey", got)
}

func TestOutlierOrthogonal(t *testing.T) {
	s := newSolver(t, []vocab.Pair{
		{Token: "ross", Vector: []float32{1, 0, 0}},
		{Token: "rachel", Vector: []float32{0.999, 0.0447, 0}},
		{Token: "emily", Vector: []float32{0.999, 0, 0.0447}},
		{Token: "gunther", Vector: []float32{0, 0, -1}},
	})

	got, err := s.Outlier([]string{"ross", "rachel", "emily", "gunther"})
	require.NoError(t, err)
	assert.Equal(t, "gunther", got)
}

func TestOutlierTieBreak(t *testing.T) {
	s := newSolver(t, []vocab.Pair{
		{Token: "c", Vector: []float32{1, 0}},
		{Token: "b", Vector: []float32{0, 1}},
		{Token: "a", Vector: []float32{-1, 0}},
		{Token: "d", Vector: []float32{0, -1}},
		{Token: "e", Vector: []float32{1, 1}},
	})

	// a and d sit symmetrically opposite the centroid.
	got, err := s.Outlier([]string{"d", "a", "b", "c", "e"})
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	scores, err := s.CentroidSimilarities([]string{"d", "a", "b", "c", "e"})
	require.NoError(t, err)
	assert.Equal(t, "a", scores[0].Token)
	assert.Equal(t, "d", scores[1].Token)
	assert.Equal(t, scores[0].Score, scores[1].Score)
}

func TestOutlierInvalidInput(t *testing.T) {
	s := royalty(t)

	for _, tokens := range [][]string{
		nil,
		{"king"},
		{"king", "queen"},
		{"king", "queen", "king", "queen"},
	} {
		_, err := s.Outlier(tokens)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "%v", tokens)
	}
}

func TestOutlierZeroCentroid(t *testing.T) {
	s := newSolver(t, []vocab.Pair{
		{Token: "east", Vector: []float32{1, 0}},
		{Token: "west", Vector: []float32{-1, 0}},
		{Token: "north", Vector: []float32{0, 1}},
		{Token: "south", Vector: []float32{0, -1}},
	})

	_, err := s.Outlier([]string{"east", "west", "north", "south"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.ErrorContains(t, err, "zero norm")
}

func TestOutlierValidatesCountBeforeLookup(t *testing.T) {
	s := royalty(t)

	_, err := s.Outlier([]string{"duke", "earl"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOutlierNotFound(t *testing.T) {
	s := royalty(t)

	_, err := s.Outlier([]string{"king", "duke", "queen", "earl"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, []string{"duke", "earl"}, apperrors.MissingTokens(err))
}
