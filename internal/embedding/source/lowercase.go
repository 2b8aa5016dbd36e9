package source

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
)

// Lowercase folds every token of the wrapped source to lower case. Tokens
// that collide after folding are left for vocab.New to reject.
func Lowercase(src Source) Source {
	return lowercase{src}
}

type lowercase struct {
	Source
}

func (l lowercase) Load(ctx context.Context) ([]vocab.Pair, error) {
	pairs, err := l.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pairs {
		pairs[i].Token = strings.ToLower(pairs[i].Token)
	}
	return pairs, nil
}
