package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newReloadCmd(opts *options) *cobra.Command {
	var (
		server    string
		token     string
		broadcast bool
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running servers to reload their vocabulary",
		Long: "With --server, call one server's admin endpoint and wait for the result.\n" +
			"With --broadcast, publish a reload request that every replica consumes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case server != "" && broadcast:
				return fmt.Errorf("--server and --broadcast are mutually exclusive")
			case server != "":
				return reloadServer(cmd, server, token)
			case broadcast:
				return broadcastReload(cmd, opts, reason)
			default:
				return fmt.Errorf("set --server or --broadcast")
			}
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "base URL of one embedding server")
	cmd.Flags().StringVar(&token, "token", os.Getenv("EMB_ADMIN_TOKEN"), "admin token for --server")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "publish to the vocabulary-reload Kafka topic")
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with a broadcast")
	return cmd
}

func reloadServer(cmd *cobra.Command, server, token string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	url := strings.TrimRight(server, "/") + "/api/v1/admin/reload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload failed with status %d: %v", resp.StatusCode, body["detail"])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s version %v, %v tokens\n", color.GreenString("reloaded"), body["version"], body["size"])
	return nil
}

func broadcastReload(cmd *cobra.Command, opts *options, reason string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.VocabularyReload)
	req := reload.Request{Reason: reason, RequestedBy: requester()}
	if err := reload.Publish(cmd.Context(), producer, req); err != nil {
		producer.Close()
		return err
	}
	if err := producer.Close(); err != nil {
		return fmt.Errorf("flushing reload request: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s reload request to %s\n", color.GreenString("published"), cfg.Kafka.Topics.VocabularyReload)
	return nil
}

func requester() string {
	host, _ := os.Hostname()
	if user := os.Getenv("USER"); user != "" {
		return user + "@" + host
	}
	return host
}
