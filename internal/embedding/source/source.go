// Package source loads raw (token, vector) pairs from wherever a trained
// model lives: a local word2vec file, an HTTP download cached on disk, an
// object in S3-compatible storage, a pgvector table or a SQLite table of
// float32 BLOBs.
package source

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
)

// Source produces the pairs a vocabulary is built from.
type Source interface {
	Load(ctx context.Context) ([]vocab.Pair, error)
	// Name describes the source for logs and the /version endpoint.
	Name() string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FromConfig builds the Source selected by cfg.Source, folding tokens to
// lower case when cfg.Lowercase is set.
func FromConfig(cfg config.EmbeddingConfig, pg config.PostgresConfig) (Source, error) {
	src, err := fromConfig(cfg, pg)
	if err != nil || !cfg.Lowercase {
		return src, err
	}
	return Lowercase(src), nil
}

func fromConfig(cfg config.EmbeddingConfig, pg config.PostgresConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return NewFile(cfg.Path, cfg.Format), nil
	case config.SourceHTTP:
		return NewHTTP(cfg.URL, cfg.Path, cfg.Format, cfg.MaxAttempts), nil
	case config.SourceMinIO:
		return NewObject(cfg.MinIO, cfg.Format)
	case config.SourcePostgres:
		return NewPostgres(pg, cfg.Table)
	case config.SourceSQLite:
		return NewSQLite(cfg.SQLitePath, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown embedding source %q", cfg.Source)
	}
}

// Decode parses a model stream in the given format.
func Decode(r io.Reader, format string) ([]vocab.Pair, error) {
	switch format {
	case config.FormatText, "":
		return ReadText(r)
	case config.FormatBinary:
		return ReadBinary(r)
	default:
		return nil, fmt.Errorf("unknown model format %q", format)
	}
}

func checkTable(table string) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}
