package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/source"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/postgres"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type exportTargets struct {
	text     string
	binary   string
	sqlite   string
	postgres bool
	table    string
}

func newExportCmd(opts *options) *cobra.Command {
	t := &exportTargets{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the configured vocabulary to other stores",
		Long: "Load the configured vocabulary and write it to every requested target.\n" +
			"The outputs can be served back with the matching embedding source.",
		Example: "  embedctl export --sqlite data/friends.db --binary data/friends.bin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.text == "" && t.binary == "" && t.sqlite == "" && !t.postgres {
				return fmt.Errorf("no export target: set --text, --binary, --sqlite or --postgres")
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			pairs := pairsOf(s.snap.Store)
			written, err := t.run(cmd.Context(), s, pairs)
			if err != nil {
				return err
			}
			for _, target := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d tokens -> %s\n", color.GreenString("exported"), len(pairs), target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&t.text, "text", "", "write a word2vec text file")
	cmd.Flags().StringVar(&t.binary, "binary", "", "write a word2vec binary file")
	cmd.Flags().StringVar(&t.sqlite, "sqlite", "", "write a SQLite database")
	cmd.Flags().BoolVar(&t.postgres, "postgres", false, "write to the configured Postgres (pgvector)")
	cmd.Flags().StringVar(&t.table, "table", "embeddings", "table name for --sqlite and --postgres")
	return cmd
}

// run writes every target concurrently and reports what was written, in flag
// order.
func (t *exportTargets) run(ctx context.Context, s *session, pairs []vocab.Pair) ([]string, error) {
	var written []string
	g, gctx := errgroup.WithContext(ctx)
	if t.text != "" {
		written = append(written, "text:"+t.text)
		g.Go(func() error { return writeFile(t.text, pairs, source.WriteText) })
	}
	if t.binary != "" {
		written = append(written, "binary:"+t.binary)
		g.Go(func() error { return writeFile(t.binary, pairs, source.WriteBinary) })
	}
	if t.sqlite != "" {
		written = append(written, fmt.Sprintf("sqlite:%s/%s", t.sqlite, t.table))
		g.Go(func() error { return source.ExportSQLite(gctx, t.sqlite, t.table, pairs) })
	}
	if t.postgres {
		written = append(written, fmt.Sprintf("postgres:%s/%s", s.cfg.Postgres.Database, t.table))
		g.Go(func() error {
			client, err := postgres.New(gctx, s.cfg.Postgres)
			if err != nil {
				return err
			}
			defer client.Close()
			return source.ExportPostgres(gctx, client, t.table, pairs)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}

func writeFile(path string, pairs []vocab.Pair, write func(io.Writer, []vocab.Pair) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f, pairs); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func pairsOf(store *vocab.Store) []vocab.Pair {
	entries := store.Entries()
	pairs := make([]vocab.Pair, len(entries))
	for i, e := range entries {
		pairs[i] = vocab.Pair{Token: e.Token, Vector: e.Vector}
	}
	return pairs
}
