package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/app"
	"github.com/benvon/fictag/internal/config"
	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/recommend"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/services/ai"
	"github.com/benvon/fictag/internal/validation"
	"github.com/benvon/fictag/internal/vocabulary"
)

// NewRecommendCmd creates the recommend command
func NewRecommendCmd() *cobra.Command {
	var (
		title    string
		bodyFile string
		tags     []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend tags for a single work",
		Long:  "Submit one work to the configured generation backend and print the validated recommendation",
		Example: `  fictag recommend --title "The Long Way Home" --body-file chapter1.txt --tag Angst --tag "Alex/Sam"
  cat chapter1.txt | fictag recommend --title "The Long Way Home" --body-file - --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title is required")
			}
			if bodyFile == "" {
				return fmt.Errorf("--body-file is required")
			}

			body, err := readBody(cmd.InOrStdin(), bodyFile)
			if err != nil {
				return err
			}

			tags = validation.SanitizeTags(tags)
			for _, tag := range tags {
				if err := validation.ValidateTagName(tag); err != nil {
					return fmt.Errorf("invalid --tag: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			debug = debug || cfg.ServerDebugMode
			zapLogger, err := logger.NewDevelopmentLogger(debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(zapLogger) }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			vocab, err := app.OpenVocabulary(ctx, cfg, zapLogger)
			if err != nil {
				return fmt.Errorf("failed to open vocabulary: %w", err)
			}
			defer func() {
				if err := vocab.Close(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close vocabulary connections: %v\n", err)
				}
			}()

			backend, err := app.NewBackend(cfg, zapLogger, debug)
			if err != nil {
				return err
			}

			work := models.NewWork(validation.SanitizeText(title), validation.SanitizeText(body), tags)
			return runRecommend(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), backend, vocab.Source, work, asJSON, zapLogger)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title of the work (required)")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "File holding the body of the work, or - for stdin (required)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Author tag (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the recommendation set as JSON instead of the text report")

	return cmd
}

func readBody(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("body is empty")
	}
	return string(data), nil
}

// runRecommend submits work through a fresh pipeline and prints the result.
// Rule violations are listed on errOut before the error is returned.
func runRecommend(ctx context.Context, out, errOut io.Writer, backend ai.Backend, source vocabulary.Source, work *models.Work, asJSON bool, zapLogger *zap.Logger) error {
	pipeline := recommend.New(backend, source, registry.New(), recommend.WithLogger(zapLogger))

	set, err := pipeline.Submit(ctx, work)
	if err != nil {
		var invalid *recommend.InvalidRecommendationError
		if errors.As(err, &invalid) {
			for _, v := range invalid.Violations {
				fmt.Fprintf(errOut, "  - [%s] %s #%d %q: %s\n", v.Kind, v.List, v.Index, v.Name, v.Message)
			}
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}

	_, err = io.WriteString(out, recommend.Render(set))
	return err
}
