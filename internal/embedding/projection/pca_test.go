package projection

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *vocab.Store {
	t.Helper()
	store, err := vocab.New([]vocab.Pair{
		{Token: "rachel", Vector: []float32{1, 0, 0.5, 0.25}},
		{Token: "monica", Vector: []float32{0.9, 0.1, 0.4, 0.2}},
		{Token: "joey", Vector: []float32{-1, 0.3, 0, 0.7}},
		{Token: "phoebe", Vector: []float32{0.1, 1, -0.6, 0}},
	})
	require.NoError(t, err)
	return store
}

func dist(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += (a[i] - b[i]) * (a[i] - b[i])
	}
	return math.Sqrt(s)
}

func TestProject2DPreservesPlanarGeometry(t *testing.T) {
	// Three points always span a plane, so the projection is a rigid motion
	// of the centred points and preserves pairwise distances.
	store := newStore(t)
	tokens := []string{"rachel", "joey", "phoebe"}

	got, err := Project2D(store, tokens)
	require.NoError(t, err)
	require.Len(t, got.Points, 3)

	for i, tok := range tokens {
		assert.Equal(t, tok, got.Points[i].Token, "points follow input order")
	}

	orig := make([][]float64, len(tokens))
	for i, tok := range tokens {
		e, err := store.Lookup(tok)
		require.NoError(t, err)
		for _, x := range e.Vector {
			orig[i] = append(orig[i], float64(x))
		}
	}
	for i := range tokens {
		for j := range tokens {
			pi := []float64{got.Points[i].X, got.Points[i].Y}
			pj := []float64{got.Points[j].X, got.Points[j].Y}
			assert.InDelta(t, dist(orig[i], orig[j]), dist(pi, pj), 1e-5)
		}
	}
	assert.GreaterOrEqual(t, got.ExplainedVariance[0], got.ExplainedVariance[1])
}

func TestProject2DIsCentred(t *testing.T) {
	got, err := Project2D(newStore(t), []string{"rachel", "monica", "joey", "phoebe"})
	require.NoError(t, err)

	var sx, sy float64
	for _, p := range got.Points {
		sx += p.X
		sy += p.Y
	}
	assert.InDelta(t, 0, sx, 1e-9)
	assert.InDelta(t, 0, sy, 1e-9)
}

func TestProject2DTwoTokens(t *testing.T) {
	got, err := Project2D(newStore(t), []string{"rachel", "joey"})
	require.NoError(t, err)
	require.Len(t, got.Points, 2)

	assert.InDelta(t, 0, got.Points[0].Y, 1e-9)
	assert.InDelta(t, 0, got.Points[1].Y, 1e-9)
	assert.InDelta(t, -got.Points[0].X, got.Points[1].X, 1e-9)
}

func TestProject2DIsDeterministic(t *testing.T) {
	store := newStore(t)
	tokens := []string{"phoebe", "monica", "joey"}

	first, err := Project2D(store, tokens)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Project2D(store, tokens)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestProject2DErrors(t *testing.T) {
	store := newStore(t)

	_, err := Project2D(store, []string{"rachel"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Project2D(store, []string{"rachel", "rachel", "rachel"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Project2D(store, []string{"rachel", "gunther", "janice"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, []string{"gunther", "janice"}, apperrors.MissingTokens(err))
}
