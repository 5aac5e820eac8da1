package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Harshalzarikar/Beaver-agent/internal/pipeline"
)

var (
	processSender  string
	processWorkers int
)

var processCmd = &cobra.Command{
	Use:   "process [file...]",
	Short: "Run the pipeline on one or more emails",
	Long: `Process runs the full email pipeline (redaction, routing, drafting,
verification) on email bodies read from files, or from stdin when no
files are given. Results are printed as JSON, one object per email.

With multiple files, --workers controls how many emails are processed
concurrently.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processSender, "sender", "", "sender email address (required)")
	processCmd.Flags().IntVar(&processWorkers, "workers", 4, "concurrent emails in batch mode")
	_ = processCmd.MarkFlagRequired("sender")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) <= 1 {
		var raw []byte
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		result, err := a.orchestrator.Process(cmd.Context(), string(raw), processSender)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), result)
	}

	return runBatch(cmd, a, args)
}

// runBatch processes several email files concurrently. Each file failure is
// reported but does not abort the rest of the batch.
func runBatch(cmd *cobra.Command, a *app, files []string) error {
	workers := processWorkers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex // serializes stdout writes
	var failed int

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)

	for _, file := range files {
		g.Go(func() error {
			raw, err := os.ReadFile(file)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				log.Error().Err(err).Str("file", file).Msg("batch_read_failed")
				return nil
			}
			result, err := a.orchestrator.Process(ctx, string(raw), processSender)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Error().Err(err).Str("file", file).Msg("batch_process_failed")
				return nil
			}
			return printResult(cmd.OutOrStdout(), result)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d emails failed", failed, len(files))
	}
	return nil
}

func printResult(w io.Writer, result *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
