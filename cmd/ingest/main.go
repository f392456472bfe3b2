package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"book-rag/internal/chunker"
	"book-rag/internal/config"
	"book-rag/internal/embedding"
	"book-rag/internal/helper"
	"book-rag/internal/ingest"
	"book-rag/internal/logger"
	"book-rag/internal/parser"
	"book-rag/internal/storage"
)

type ingestOptions struct {
	configPath string
	reset      bool
}

func main() {
	_ = godotenv.Load()
	logger.Setup("info")

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
}

func newRootCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [source-dir]",
		Short: "Extract, chunk and embed books into the vector store",
		Long: `Reads every matching document in the source directory, splits the text
into overlapping word windows, embeds them and stores them in the collection.
Without a source directory argument the path is read from standard input.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "path to YAML config file")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "drop the collection before ingesting")
	return cmd
}

func runIngest(cmd *cobra.Command, opts *ingestOptions, args []string) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level)

	runID, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	l := log.With().Str("run_id", runID).Logger()
	ctx := l.WithContext(context.Background())

	var sourceDir string
	if len(args) == 1 {
		sourceDir = args[0]
	} else {
		sourceDir = promptSourceDir(cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.SourceDir)
	}
	if info, err := os.Stat(sourceDir); err != nil || !info.IsDir() {
		l.Error().Str("dir", sourceDir).Msg("Source folder does not exist")
		return nil
	}

	registry := parser.NewRegistry()
	for _, ext := range cfg.Extensions {
		if !registry.Supports(ext) {
			l.Warn().Str("extension", ext).Strs("supported", registry.Extensions()).Msg("No extractor for extension, matching files will be skipped")
		}
	}

	ch, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap, cfg.Chunking.MinChars)
	if err != nil {
		return err
	}

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := storage.OpenForWrite(ctx, &cfg.Store, embedder.EmbedQuery)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	if opts.reset {
		l.Info().Str("collection", cfg.Store.Collection).Msg("Dropping collection")
		if err := store.Reset(ctx); err != nil {
			return err
		}
	}

	svc := ingest.NewService(registry, ch, embedder, store, ingest.Options{
		BatchSize:   cfg.Ingest.BatchSize,
		Extensions:  cfg.Extensions,
		SummaryPath: cfg.SummaryPath,
	})

	if _, err := svc.Run(ctx, sourceDir); err != nil {
		if errors.Is(err, ingest.ErrNoDocuments) {
			return nil
		}
		return err
	}

	if cfg.Store.ExportPath == "" {
		return nil
	}
	exporter, ok := store.(storage.Exporter)
	if !ok {
		l.Warn().Str("driver", cfg.Store.Driver).Msg("Store does not support export, skipping")
		return nil
	}
	if err := helper.CreateFolder(filepath.Dir(cfg.Store.ExportPath)); err != nil {
		return err
	}
	if err := exporter.Export(ctx, cfg.Store.ExportPath); err != nil {
		return err
	}
	l.Info().Str("path", cfg.Store.ExportPath).Msg("Exported collection")
	return nil
}

// promptSourceDir asks for the books folder; an empty answer keeps def.
func promptSourceDir(in io.Reader, out io.Writer, def string) string {
	fmt.Fprint(out, "Enter the full path to your Books folder (or press Enter for default): ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	if dir := strings.TrimSpace(line); dir != "" {
		return dir
	}
	return def
}
