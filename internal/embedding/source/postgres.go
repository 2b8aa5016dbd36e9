package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/postgres"
	"github.com/pgvector/pgvector-go"
)

// Postgres reads tokens from a pgvector table with columns
// (token text primary key, embedding vector(N)). A connection is opened per
// load; loads are rare and the pool would otherwise sit idle.
type Postgres struct {
	cfg   config.PostgresConfig
	table string
}

func NewPostgres(cfg config.PostgresConfig, table string) (*Postgres, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &Postgres{cfg: cfg, table: table}, nil
}

func (p *Postgres) Name() string {
	return fmt.Sprintf("postgres:%s/%s", p.cfg.Database, p.table)
}

func (p *Postgres) Load(ctx context.Context) ([]vocab.Pair, error) {
	client, err := postgres.New(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	rows, err := client.DB.QueryContext(ctx, `SELECT token, embedding FROM `+p.table+` ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", p.table, err)
	}
	defer rows.Close()

	var pairs []vocab.Pair
	for rows.Next() {
		var (
			token string
			vec   pgvector.Vector
		)
		if err := rows.Scan(&token, &vec); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", p.table, err)
		}
		pairs = append(pairs, vocab.Pair{Token: token, Vector: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", p.table, err)
	}
	return pairs, nil
}

// ExportPostgres creates the pgvector table if needed and replaces its rows
// with pairs in one transaction.
func ExportPostgres(ctx context.Context, client *postgres.Client, table string, pairs []vocab.Pair) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("nothing to export")
	}
	dim := len(pairs[0].Vector)
	return client.InTx(ctx, func(tx *sql.Tx) error {
		ddl := fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %s (token TEXT PRIMARY KEY, embedding vector(%d) NOT NULL)`, table, dim)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (token, embedding) VALUES ($1, $2)
ON CONFLICT (token) DO UPDATE SET embedding = EXCLUDED.embedding`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, p.Token, pgvector.NewVector(p.Vector)); err != nil {
				return fmt.Errorf("upserting %q: %w", p.Token, err)
			}
		}
		return nil
	})
}
