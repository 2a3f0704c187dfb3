// Package main provides the operator CLI for PDF chat.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bull/pdfchat-server/internal/app"
	"github.com/bull/pdfchat-server/internal/config"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "pdfchat",
	Short:        "PDF chat operator tool",
	Long:         "CLI tool for ingesting PDFs and querying the PDF chat index",
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Upload and index local PDF files",
	Long: `Uploads each file, then chunks, embeds and indexes it before moving on.

Files whose content is already stored are reported and skipped.

Environment variables:
  MONGO_URI       MongoDB connection string (default: mongodb://localhost:27017)
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  API key for embeddings (required)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a relevance-filtered passage search",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [document-id]...",
	Short: "Rebuild the chunk index from stored PDFs",
	Long: `Re-chunks and re-embeds stored documents. With no ids every document is
reindexed. --clear drops and recreates the Qdrant collection first.`,
	RunE: runReindex,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document and index counts",
	RunE:  runStatus,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List chat models and their provider groups",
	RunE:  runModels,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	searchCmd.Flags().StringSlice("doc", nil, "document id to search (repeatable; default all documents)")
	searchCmd.Flags().IntP("k", "k", 0, "number of passages to return (default from config)")

	reindexCmd.Flags().Bool("clear", false, "drop and recreate the Qdrant collection before reindexing")

	rootCmd.AddCommand(ingestCmd, searchCmd, reindexCmd, statusCmd, modelsCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %s", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}
	// Quiet logs so they don't fight with the progress bar.
	cfg.Log.Level = "warn"
	return app.New(ctx, cfg, app.Options{Synchronous: true}, app.NewLogger(cfg.Log))
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription(color.BlueString("Ingesting")),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	type failure struct{ file, reason string }
	var (
		created, existed int
		failures         []failure
	)
	for _, path := range args {
		name := filepath.Base(path)
		bar.Describe(color.BlueString("Ingesting %s", name))

		data, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, failure{name, err.Error()})
			_ = bar.Add(1)
			continue
		}
		res, err := a.Service.UploadDocument(ctx, name, data)
		switch {
		case err != nil:
			failures = append(failures, failure{name, err.Error()})
		case res.Existed:
			existed++
		default:
			doc, getErr := a.Service.GetDocument(ctx, res.Document.ID)
			if getErr == nil && doc.Status == records.StatusFailed {
				failures = append(failures, failure{name, "indexing failed"})
			} else {
				created++
			}
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Println()
	color.Green("✓ Ingested %d new, %d already stored", created, existed)
	if len(failures) > 0 {
		color.Red("Failed files:")
		for _, f := range failures {
			fmt.Printf("  - %s: %s\n", f.file, f.reason)
		}
	}
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(failures), len(args))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docs, _ := cmd.Flags().GetStringSlice("doc")
	k, _ := cmd.Flags().GetInt("k")

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	matches, err := a.Service.Search(ctx, args[0], docs, k)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		color.Yellow("No passages within distance %.2f", a.Filter.MaxDistance())
		return nil
	}

	names := map[string]string{}
	for i, m := range matches {
		name, ok := names[m.DocumentID]
		if !ok {
			name = m.DocumentID
			if doc, err := a.Service.GetDocument(ctx, m.DocumentID); err == nil {
				name = doc.DisplayName()
			}
			names[m.DocumentID] = name
		}
		color.Cyan("%d. %s, page %d (distance %.3f)", i+1, name, m.Page, m.Distance)
		fmt.Println(m.Text)
		fmt.Println()
	}
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	for _, m := range a.Service.Models() {
		marker := " "
		if m.Model == a.Service.DefaultModel() {
			marker = "*"
		}
		fmt.Printf("%s %-40s %s\n", marker, m.Model, m.Group)
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	clearFirst, _ := cmd.Flags().GetBool("clear")

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	ids := args
	if len(ids) == 0 {
		docs, err := a.Service.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
	}

	if clearFirst {
		qs, ok := a.Vectors.(*storage.QdrantStorage)
		if !ok {
			return fmt.Errorf("--clear requires the qdrant backend, have %q", a.Config.Storage.Backend)
		}
		fmt.Println("Clearing existing collection...")
		if err := qs.ClearCollection(ctx); err != nil {
			return fmt.Errorf("clear collection: %w", err)
		}
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription(color.BlueString("Reindexing")),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)

	chunks, failed := 0, 0
	for _, id := range ids {
		res, err := a.Pipeline.IndexDocument(ctx, id)
		if err != nil {
			failed++
			color.Red("\n%s: %v", id, err)
		} else {
			chunks += res.Chunks
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Println()
	color.Green("✓ Reindexed %d/%d documents into %d chunks", len(ids)-failed, len(ids), chunks)
	if failed > 0 {
		return fmt.Errorf("%d documents failed to reindex", failed)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	docs, err := a.Service.ListDocuments(ctx)
	if err != nil {
		return err
	}
	byStatus := map[records.DocumentStatus]int{}
	words := 0
	for _, d := range docs {
		byStatus[d.Status]++
		words += d.WordCount
	}
	convs, err := a.Service.ListConversations(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Documents:     %d (ready %d, pending %d, failed %d)\n",
		len(docs), byStatus[records.StatusReady], byStatus[records.StatusPending], byStatus[records.StatusFailed])
	fmt.Printf("Words:         %d\n", words)
	fmt.Printf("Conversations: %d\n", len(convs))
	fmt.Printf("Vector store:  %s\n", a.Config.Storage.Backend)

	if qs, ok := a.Vectors.(*storage.QdrantStorage); ok {
		info, err := qs.GetCollectionInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Chunks:        %d\n", info.PointsCount)
	}
	return nil
}
