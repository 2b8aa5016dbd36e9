// Package cli implements embedctl, the operator command line for the
// embedding service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/source"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/version"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const logo = "\n" +
	"  ___       _             _ _   _\n" +
	" | __|_ __ | |__  ___ _ _| | |_| |\n" +
	" | _|| '  \\| '_ \\/ -_) '_|  _|  _| |\n" +
	" |___|_|_|_|_.__/\\___\\__|\\__|\\__|_|\n"

type options struct {
	configPath string
	asJSON     bool
}

// NewRootCmd builds the embedctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "embedctl",
		Short:         "Query and manage Friends character embeddings",
		Long:          color.CyanString(logo) + "\nRun embedding queries locally, export vocabularies and trigger reloads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/development.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newVersionCmd(),
		newSimilarCmd(opts),
		newSimilarityCmd(opts),
		newAnalogyCmd(opts),
		newOddOneOutCmd(opts),
		newProjectCmd(opts),
		newInfoCmd(opts),
		newExportCmd(opts),
		newReloadCmd(opts),
	)
	return root
}

// Execute runs embedctl and prints any error in red.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "embedctl %s (%s)\n", version.Version, version.Commit)
		},
	}
}

// session is a vocabulary loaded for one command.
type session struct {
	cfg  *config.Config
	snap *engine.Snapshot
	src  source.Source
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) open(ctx context.Context) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	src, err := source.FromConfig(cfg.Embedding, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Embedding.LoadTimeout)
		defer cancel()
	}
	pairs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary from %s: %w", src.Name(), err)
	}
	store, err := vocab.New(pairs)
	if err != nil {
		return nil, fmt.Errorf("building vocabulary from %s: %w", src.Name(), err)
	}
	return &session{cfg: cfg, snap: engine.NewSnapshot(store, src.Name()), src: src}, nil
}

func (s *session) normalize(tokens ...string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if s.cfg.Embedding.Lowercase {
			t = strings.ToLower(t)
		}
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHeader(w io.Writer, title string) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, title)
}
