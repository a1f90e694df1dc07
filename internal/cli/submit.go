package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"quiz-intake-service/internal/catalog"
	"quiz-intake-service/internal/client"
	"quiz-intake-service/internal/collector"
	"quiz-intake-service/internal/domain"
)

// answerSheet is the YAML document the submit command reads.
type answerSheet struct {
	Profile domain.Profile    `yaml:"profile"`
	Answers map[string]string `yaml:"answers"`
}

type submitOptions struct {
	sheet         string
	server        string
	progress      string
	healthTimeout time.Duration
	verbose       bool
}

// NewSubmitCmd fills in a quiz from an answer sheet and submits it.
func NewSubmitCmd() *cobra.Command {
	opts := submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a filled answer sheet to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "YAML answer sheet (profile + answers by question id)")
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:5000", "base URL of the intake server")
	cmd.Flags().StringVar(&opts.progress, "progress", ".intake-progress.json", "file that keeps answers between attempts")
	cmd.Flags().DurationVar(&opts.healthTimeout, "health-timeout", client.DefaultHealthTimeout, "how long to wait for a healthy server")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log health probes")
	_ = cmd.MarkFlagRequired("sheet")
	return cmd
}

func runSubmit(ctx context.Context, opts submitOptions, out io.Writer) error {
	data, err := os.ReadFile(opts.sheet)
	if err != nil {
		return fmt.Errorf("read answer sheet: %w", err)
	}
	var sheet answerSheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return fmt.Errorf("parse answer sheet: %w", err)
	}

	quiz, err := collector.New(catalog.Default(), collector.NewFileStore(opts.progress))
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(sheet.Answers))
	for id := range sheet.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := quiz.Select(id, sheet.Answers[id]); err != nil {
			return err
		}
	}
	answered, total := quiz.Progress()
	fmt.Fprintf(out, "answered %d of %d questions\n", answered, total)

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	api := client.New(opts.server,
		client.WithHealthTimeout(opts.healthTimeout),
		client.WithLogger(logger),
	)
	saved, err := api.Submit(ctx, domain.NewSubmission{Profile: sheet.Profile, Answers: quiz.Answers()})
	if errors.Is(err, client.ErrServerBusy) {
		return fmt.Errorf("server busy, your answers are saved in %s: %w", opts.progress, err)
	}
	if err != nil {
		return err
	}

	if err := quiz.Clear(); err != nil {
		return fmt.Errorf("submitted %s but could not clear progress: %w", saved.ID, err)
	}
	fmt.Fprintf(out, "submitted %s\n", saved.ID)
	return nil
}
