// Package projection reduces a handful of token vectors to two dimensions
// with principal component analysis, for plotting.
//
// The PCA is fit on the requested vectors only, so the sample size equals the
// number of tokens. The result is a deterministic linear projection of that
// small sample, not a general reduction of the embedding space. With n
// tokens at most n-1 components carry variance: two tokens always project
// onto a line (y = 0), and linearly dependent inputs give degenerate
// components.
package projection

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinTokens is the smallest number of distinct tokens that can be projected.
const MinTokens = 2

// Point is the 2D position of a token.
type Point struct {
	Token string  `json:"token"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Projection is the result of Project2D.
type Projection struct {
	Points []Point `json:"points"`
	// ExplainedVariance holds the variance along each returned component.
	ExplainedVariance [2]float64 `json:"explained_variance"`
}

// Project2D projects tokens onto the first two principal components of their
// own vectors. Points are returned in input order; repeated tokens are
// projected once per occurrence.
func Project2D(store *vocab.Store, tokens []string) (*Projection, error) {
	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		distinct[t] = struct{}{}
	}
	if len(distinct) < MinTokens {
		return nil, apperrors.InvalidInputf("projection needs at least %d distinct tokens, got %d", MinTokens, len(distinct))
	}
	entries, err := store.LookupAll(tokens)
	if err != nil {
		return nil, err
	}

	n, d := len(entries), store.Dimension()
	data := mat.NewDense(n, d, nil)
	for i, e := range entries {
		for j, x := range e.Vector {
			data.Set(i, j, float64(x))
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, apperrors.InvalidInputf("principal component analysis did not converge")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)
	_, k := vecs.Dims()
	if k > 2 {
		k = 2
	}
	orientComponents(&vecs, k)

	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, data)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}
	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, d, 0, k))

	out := &Projection{Points: make([]Point, n)}
	for c := 0; c < k && c < len(vars); c++ {
		out.ExplainedVariance[c] = vars[c]
	}
	for i, e := range entries {
		p := Point{Token: e.Token, X: proj.At(i, 0)}
		if k > 1 {
			p.Y = proj.At(i, 1)
		}
		out.Points[i] = p
	}
	return out, nil
}

// orientComponents fixes the sign of each of the first k components so that
// its largest-magnitude loading is positive. Singular vectors are only
// defined up to sign; this makes plots stable across runs and platforms.
func orientComponents(vecs *mat.Dense, k int) {
	rows, _ := vecs.Dims()
	for c := 0; c < k; c++ {
		best, bestAbs := 0.0, -1.0
		for r := 0; r < rows; r++ {
			v := vecs.At(r, c)
			if a := math.Abs(v); a > bestAbs {
				best, bestAbs = v, a
			}
		}
		if best < 0 {
			for r := 0; r < rows; r++ {
				vecs.Set(r, c, -vecs.At(r, c))
			}
		}
	}
}
