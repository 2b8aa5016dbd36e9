package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/render"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/projection"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSimilarCmd(opts *options) *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "similar <token>",
		Short: "List the nearest neighbours of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("topn") {
				topN = s.cfg.Query.DefaultTopN
			}
			token := s.normalize(args[0])
			if len(token) == 0 {
				return fmt.Errorf("token is empty")
			}
			matches, err := s.snap.Similarity.MostSimilar(token[0], topN)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), matches)
			}
			printHeader(cmd.OutOrStdout(), "Most similar to "+token[0])
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topN, "topn", "n", 5, "number of neighbours")
	return cmd
}

func newSimilarityCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <token1> <token2>",
		Short: "Score two tokens, cosine similarity times 100",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			tokens := s.normalize(args...)
			if len(tokens) != 2 {
				return fmt.Errorf("two non-empty tokens are required")
			}
			score, err := s.snap.Similarity.Pairwise(tokens[0], tokens[1])
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"token1":     tokens[0],
					"token2":     tokens[1],
					"similarity": score,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ~ %s: %s\n", tokens[0], tokens[1], scoreString(score))
			return nil
		},
	}
}

func newAnalogyCmd(opts *options) *cobra.Command {
	var (
		positive string
		negative string
		topN     int
	)
	cmd := &cobra.Command{
		Use:     "analogy",
		Short:   "Solve positive - negative vector arithmetic",
		Example: "  embedctl analogy --positive king,woman --negative man",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("topn") {
				topN = s.cfg.Query.AnalogyTopN
			}
			pos := s.normalize(splitList(positive)...)
			neg := s.normalize(splitList(negative)...)
			matches, err := s.snap.Solver.Analogy(pos, neg, topN)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), matches)
			}
			printHeader(cmd.OutOrStdout(), fmt.Sprintf("%v - %v", pos, neg))
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().StringVarP(&positive, "positive", "p", "", "comma-separated tokens to add")
	cmd.Flags().StringVarP(&negative, "negative", "m", "", "comma-separated tokens to subtract")
	cmd.Flags().IntVarP(&topN, "topn", "n", 1, "number of results")
	return cmd
}

func newOddOneOutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "odd-one-out <token> <token> <token>...",
		Short: "Find the token furthest from the group centroid",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			tokens := s.normalize(args...)
			odd, err := s.snap.Solver.Outlier(tokens)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"words": tokens, "odd_one_out": odd})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "odd one out: %s\n", color.YellowString(odd))
			return nil
		},
	}
}

func newProjectCmd(opts *options) *cobra.Command {
	var pngPath string
	cmd := &cobra.Command{
		Use:   "project <token> <token>...",
		Short: "Project tokens onto two principal components",
		Args:  cobra.MinimumNArgs(projection.MinTokens),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			proj, err := projection.Project2D(s.snap.Store, s.normalize(args...))
			if err != nil {
				return err
			}
			if pngPath != "" {
				if err := writePNG(pngPath, proj); err != nil {
					return err
				}
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), proj)
			}
			printHeader(cmd.OutOrStdout(), "Projection")
			for _, p := range proj.Points {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %9.4f %9.4f\n", p.Token, p.X, p.Y)
			}
			if pngPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "plot written to %s\n", pngPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "also write a scatter plot to this file")
	return cmd
}

func writePNG(path string, proj *projection.Projection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render.ScatterPNG(f, proj, "Word2Vec Character Embedding"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			info := map[string]any{
				"source":    s.src.Name(),
				"size":      s.snap.Store.Size(),
				"dimension": s.snap.Store.Dimension(),
				"lowercase": s.cfg.Embedding.Lowercase,
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), info)
			}
			w := cmd.OutOrStdout()
			printHeader(w, "Vocabulary")
			fmt.Fprintf(w, "Source:    %s\n", s.src.Name())
			fmt.Fprintf(w, "Tokens:    %d\n", s.snap.Store.Size())
			fmt.Fprintf(w, "Dimension: %d\n", s.snap.Store.Dimension())
			return nil
		},
	}
}

func printMatches(w io.Writer, matches []similarity.Match) {
	for i, m := range matches {
		fmt.Fprintf(w, "%3d. %-16s %s\n", i+1, m.Token, scoreString(m.Score))
	}
}

func scoreString(score float64) string {
	s := fmt.Sprintf("%7.2f", score)
	switch {
	case score >= 50:
		return color.GreenString(s)
	case score < 0:
		return color.RedString(s)
	default:
		return s
	}
}
