// Package similarity ranks vocabulary entries by cosine similarity.
//
// Scores returned in a Match are percentage-scaled (cosine × 100) and lie in
// [-100, 100]. Ordering is by descending score; equal scores are ordered by
// ascending token so results are reproducible.
package similarity

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
)

// Scale converts a cosine in [-1, 1] to the display scale of a Match score.
const Scale = 100

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.InvalidInputf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	na, nb := vocab.Norm(a), vocab.Norm(b)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("%w: cosine with zero-norm operand", apperrors.ErrDegenerateVector)
	}
	return cosine(a, b, na, nb), nil
}

// cosine assumes equal lengths and non-zero norms. The result is clamped to
// [-1, 1] to absorb rounding error.
func cosine(a, b []float32, na, nb float64) float64 {
	c := Dot(a, b) / (na * nb)
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// Dot returns the dot product of a and b accumulated in float64.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
