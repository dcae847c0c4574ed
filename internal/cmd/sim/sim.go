// Package sim runs scenario scripts for the digiwin-sim command.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/MJE43/digiwin/internal/config"
	"github.com/MJE43/digiwin/internal/scripting"
)

// Config holds scenario command configuration.
type Config struct {
	Scenarios  []string
	ServerSeed string
	Timeout    time.Duration
	JSON       bool
	Verbose    bool
}

// ParseConfig reads DIGIWIN_* variables, then flags. Remaining arguments
// are scenario files.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	env, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{ServerSeed: env.ServerSeed, Timeout: env.ScenarioTimeout}
	if cfg.ServerSeed == "" {
		cfg.ServerSeed = scripting.DefaultServerSeed
	}

	fs.StringVar(&cfg.ServerSeed, "seed", cfg.ServerSeed, "server seed secrets are derived from")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout per scenario")
	fs.BoolVar(&cfg.JSON, "json", false, "print reports as JSON")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "print chain call logs")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Scenarios = fs.Args()
	return cfg, nil
}

// Run executes every scenario and prints a report for each. It fails when
// any scenario fails.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(cfg.Scenarios) == 0 {
		return errors.New("at least one scenario file is required")
	}

	chainLog := io.Discard
	if cfg.Verbose {
		chainLog = errOut
	}
	runner := scripting.NewRunner(
		scripting.WithServerSeed(cfg.ServerSeed),
		scripting.WithTimeout(cfg.Timeout),
		scripting.WithLogger(log.New(chainLog, "[CHAIN] ", 0)),
	)

	failed := 0
	for _, path := range cfg.Scenarios {
		report, err := runner.RunFile(ctx, path)
		if err != nil {
			return err
		}
		if !report.Passed() {
			failed++
		}
		if cfg.JSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			continue
		}
		printReport(out, report, cfg.Verbose)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(cfg.Scenarios))
	}
	return nil
}

func printReport(out io.Writer, r *scripting.Report, verbose bool) {
	status := "PASS"
	if !r.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(out, "%s %s calls=%d height=%d duration=%s\n", status, r.Name, len(r.Calls), r.BlockHeight, r.Duration)

	if verbose {
		for _, c := range r.Calls {
			res := c.Result
			if c.Error != "" {
				res = "error: " + c.Error
			}
			fmt.Fprintf(out, "  %s %s::%s %v -> %s\n", c.Kind, c.Contract, c.Function, c.Args, res)
		}
	}
	for _, l := range r.Logs {
		fmt.Fprintf(out, "  log: %s\n", l.Message)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(out, "  assert (after call %d): %s\n", f.Call, f.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", r.Error)
	}
}
