package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benvon/fictag/internal/app"
	"github.com/benvon/fictag/internal/config"
	"github.com/benvon/fictag/internal/database"
	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/vocabulary"
)

// NewVocabCmd creates the vocab command group
func NewVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect and manage the tag vocabulary",
	}

	cmd.AddCommand(newVocabListCmd())
	cmd.AddCommand(newVocabImportCmd())

	return cmd
}

func newVocabListCmd() *cobra.Command {
	var category string
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured vocabulary",
		Long:  "List the vocabulary from the configured source (CSV file or Postgres), optionally filtered by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			zapLogger, err := logger.NewDevelopmentLogger(false)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(zapLogger) }()

			ctx := context.Background()
			vocab, err := app.OpenVocabulary(ctx, cfg, zapLogger)
			if err != nil {
				return fmt.Errorf("failed to open vocabulary: %w", err)
			}
			defer func() {
				if err := vocab.Close(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close vocabulary connections: %v\n", err)
				}
			}()

			return listVocabulary(ctx, cmd.OutOrStdout(), vocab.Source, category, asCSV)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list entries in this category")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Print category,name,uses rows as sent to the backend")

	return cmd
}

func listVocabulary(ctx context.Context, out io.Writer, source vocabulary.Source, category string, asCSV bool) error {
	entries, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	if category != "" {
		entries = vocabulary.Filter(entries, category)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No vocabulary entries")
		return nil
	}

	if asCSV {
		_, err := io.WriteString(out, vocabulary.FormatListing(entries))
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNAME\tUSES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Category, e.Name, e.Uses)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}

func newVocabImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a vocabulary CSV into Postgres",
		Long:  "Replace the vocabulary_tags table with the rows of a category,name,uses CSV file in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for import")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close database: %v\n", err)
				}
			}()

			return importVocabulary(context.Background(), cmd.OutOrStdout(), database.NewVocabularyRepository(db), f)
		},
	}

	return cmd
}

func importVocabulary(ctx context.Context, out io.Writer, repo database.VocabularyRepositoryInterface, r io.Reader) error {
	entries, err := vocabulary.ParseCSV(r)
	if err != nil {
		return fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("vocabulary file has no entries")
	}

	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := repo.ReplaceAll(ctx, entries); err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Imported %d vocabulary entries across %d categories\n", len(entries), countCategories(entries))
	return nil
}

func countCategories(entries []models.VocabularyEntry) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.Category] = struct{}{}
	}
	return len(seen)
}
