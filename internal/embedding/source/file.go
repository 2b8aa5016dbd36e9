package source

import (
	"context"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
)

// File reads a word2vec model from the local filesystem.
type File struct {
	path   string
	format string
}

func NewFile(path, format string) *File {
	return &File{path: path, format: format}
}

func (f *File) Name() string { return "file:" + f.path }

func (f *File) Load(ctx context.Context) ([]vocab.Pair, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening model: %w", err)
	}
	defer fh.Close()
	pairs, err := Decode(contextReader{ctx: ctx, r: fh}, f.format)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	return pairs, nil
}
