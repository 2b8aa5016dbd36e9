package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/postgres"
	_ "modernc.org/sqlite"
)

// SQLite reads tokens from a table with columns (token TEXT PRIMARY KEY,
// embedding BLOB), each BLOB holding little-endian float32s.
type SQLite struct {
	path  string
	table string
}

func NewSQLite(path, table string) (*SQLite, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &SQLite{path: path, table: table}, nil
}

func (s *SQLite) Name() string { return fmt.Sprintf("sqlite:%s/%s", s.path, s.table) }

func (s *SQLite) Load(ctx context.Context) ([]vocab.Pair, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT token, embedding FROM `+s.table+` ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var pairs []vocab.Pair
	for rows.Next() {
		var (
			token string
			blob  []byte
		)
		if err := rows.Scan(&token, &blob); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", token, err)
		}
		pairs = append(pairs, vocab.Pair{Token: token, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", s.table, err)
	}
	return pairs, nil
}

// ExportSQLite replaces the contents of table at path with pairs, creating
// both if needed.
func ExportSQLite(ctx context.Context, path, table string, pairs []vocab.Pair) error {
	if err := checkTable(table); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (token TEXT PRIMARY KEY, embedding BLOB NOT NULL)`); err != nil {
		return fmt.Errorf("creating %s: %w", table, err)
	}
	return postgres.InTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO `+table+` (token, embedding) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, p.Token, encodeVector(p.Vector)); err != nil {
				return fmt.Errorf("inserting %q: %w", p.Token, err)
			}
		}
		return nil
	})
}
