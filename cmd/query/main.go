package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"book-rag/internal/config"
	"book-rag/internal/embedding"
	"book-rag/internal/helper"
	"book-rag/internal/logger"
	"book-rag/internal/models"
	"book-rag/internal/rag"
	"book-rag/internal/storage"
)

func main() {
	_ = godotenv.Load()
	logger.Setup("info")

	cmd := newRootCmd(os.Stdout)
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd writes results to stdout; usage and errors go to the command's
// own output streams.
func newRootCmd(stdout io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "query [flags] [--] <query text> [top_k]",
		Short: "Search the ingested books",
		Long: `Embeds the query text and prints the top_k most similar chunks as
indented JSON on standard output. top_k defaults to 5.

Flags must come before the query. Use -- when the query itself starts
with a dash, for example: query -- "-karma" 3`,
		Args: queryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// past argument validation every outcome is JSON on stdout
			cmd.SilenceUsage = true

			results := search(configPath, args[0], args[1:])
			if err := helper.PrettyPrint(stdout, results); err != nil {
				log.Error().Err(err).Msg("Error writing results")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to YAML config file")
	// everything after the query text is positional, so "karma -3" reports a bad top_k
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func queryArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
		return err
	}
	if len(args) == 2 {
		if _, err := parseTopK(args[1]); err != nil {
			return err
		}
	}
	return nil
}

func parseTopK(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("top_k must be a positive integer, got %q", s)
	}
	return n, nil
}

func search(configPath, query string, rest []string) []models.QueryResult {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("Error loading config")
		return []models.QueryResult{}
	}
	logger.Setup(cfg.Logging.Level)

	topK := cfg.Query.TopK
	if len(rest) == 1 {
		// already validated by queryArgs
		topK, _ = parseTopK(rest[0])
	}

	ctx := context.Background()

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		log.Error().Err(err).Msg("Error initializing embedder")
		return []models.QueryResult{}
	}

	store, err := storage.Open(ctx, &cfg.Store, embedder.EmbedQuery)
	if err != nil {
		log.Error().Err(err).Msg("Error opening vector store")
		return []models.QueryResult{}
	}
	defer store.Close()

	return rag.NewRAG(embedder, store).Search(ctx, query, topK)
}
