// Command sequencectl runs the beam-search sequencer offline over a YAML
// fixture and prints the result as JSON.
//
// Usage:
//
//	sequencectl run fixture.yaml [--beam-width 4] [--max-length 6] [--relax]
//	sequencectl validate fixture.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/scoring"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/search"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
)

var (
	logLevel           string
	beamWidth          int
	maxLength          int
	checkpointInterval int
	relax              bool
	timeout            time.Duration

	rootCmd = &cobra.Command{
		Use:           "sequencectl",
		Short:         "Run the beat sequencer offline over YAML fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(os.Stderr, logLevel, "text")
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [fixture.yaml]",
		Short: "Search a fixture and print the best path as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runFixture,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [fixture.yaml]",
		Short: "Check that a fixture loads and its search settings are valid",
		Args:  cobra.ExactArgs(1),
		RunE:  validateFixture,
	}
)

func init() {
	defaults := config.Default().Sequencer

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	runCmd.Flags().IntVar(&beamWidth, "beam-width", defaults.BeamWidth, "beams kept per depth")
	runCmd.Flags().IntVar(&maxLength, "max-length", defaults.MaxLength, "maximum path length")
	runCmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", defaults.CheckpointInterval, "depths between checkpoints (0 disables)")
	runCmd.Flags().BoolVar(&relax, "relax", defaults.RelaxOnEmpty, "retry without the anchor requirement when nothing is found")
	runCmd.Flags().DurationVar(&timeout, "timeout", defaults.Timeout, "search time limit")

	rootCmd.AddCommand(runCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type output struct {
	*search.Result
	Relaxed bool `json:"relaxed"`
}

// MarshalJSON keeps the embedded result's null-score encoding.
func (o output) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(o.Result)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["relaxed"], _ = json.Marshal(o.Relaxed)
	return json.Marshal(fields)
}

func runFixture(cmd *cobra.Command, args []string) error {
	f, err := loadFixture(args[0])
	if err != nil {
		return err
	}
	params := resolveParams(cmd, f)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, relaxed, err := sequence(ctx, f, params, relax)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output{Result: result, Relaxed: relaxed})
}

func validateFixture(cmd *cobra.Command, args []string) error {
	f, err := loadFixture(args[0])
	if err != nil {
		return err
	}
	if _, err := chunk.NewStore(f.Candidates); err != nil {
		return err
	}
	params := resolveParams(cmd, f)
	if err := params.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d candidates, beat %q, beam width %d, max length %d\n",
		len(f.Candidates), f.Guidance.BeatID, params.BeamWidth, params.MaxLength)
	return nil
}

// resolveParams layers explicit flags over the fixture's params over the
// flag defaults.
func resolveParams(cmd *cobra.Command, f *Fixture) search.Params {
	p := search.Params{BeamWidth: beamWidth, MaxLength: maxLength, CheckpointInterval: checkpointInterval}
	if f.Params == nil {
		return p
	}
	flags := cmd.Flags()
	if flags.Lookup("beam-width") == nil || !flags.Changed("beam-width") {
		p.BeamWidth = f.Params.BeamWidth
	}
	if flags.Lookup("max-length") == nil || !flags.Changed("max-length") {
		p.MaxLength = f.Params.MaxLength
	}
	if flags.Lookup("checkpoint-interval") == nil || !flags.Changed("checkpoint-interval") {
		p.CheckpointInterval = f.Params.CheckpointInterval
	}
	return p
}

// sequence runs one search, retrying once without the anchor requirement
// when allowed and nothing was found.
func sequence(ctx context.Context, f *Fixture, params search.Params, allowRelax bool) (*search.Result, bool, error) {
	store, err := chunk.NewStore(f.Candidates)
	if err != nil {
		return nil, false, err
	}
	engine := search.NewEngine(store, search.WithScorer(scoring.NewEngine(f.TargetLength)))
	req := search.Request{
		Guidance:       f.Guidance,
		Params:         params,
		Constraints:    f.constraints(),
		Avoid:          f.avoidMemory(),
		InitialAnchors: f.InitialAnchors,
	}
	result, err := engine.Run(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if result.Found() || !allowRelax || f.Guidance.RequiredAnchors() == 0 {
		return result, false, nil
	}
	slog.Warn("no path found, retrying without anchor requirement", "beat_id", f.Guidance.BeatID)
	req.Guidance = f.Guidance.Relaxed()
	req.Avoid = f.avoidMemory()
	result, err = engine.Run(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}
