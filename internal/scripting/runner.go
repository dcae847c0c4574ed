// Package scripting runs JavaScript scenarios against a fresh simulated
// chain with the digiwin contract deployed.
package scripting

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/contract/digiwin"
	"github.com/MJE43/digiwin/internal/store"
)

const (
	// DefaultServerSeed keeps scenario secrets reproducible between runs.
	DefaultServerSeed = "digiwin-simnet"
	DefaultTimeout    = 10 * time.Second
)

// Report is the outcome of one scenario.
type Report struct {
	Name        string        `json:"name"`
	Calls       []CallRecord  `json:"calls"`
	Failures    []Failure     `json:"failures"`
	Logs        []LogEntry    `json:"logs"`
	BlockHeight uint64        `json:"block_height"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Passed reports whether the scenario ran to completion with no failed
// asserts.
func (r *Report) Passed() bool {
	return r.Error == "" && len(r.Failures) == 0
}

// Runner executes scenarios, each on its own in-memory chain.
type Runner struct {
	serverSeed string
	timeout    time.Duration
	logger     *log.Logger
	accounts   []chain.Account
}

// Option configures a Runner.
type Option func(*Runner)

// WithServerSeed sets the seed secrets are derived from.
func WithServerSeed(seed string) Option {
	return func(r *Runner) {
		if seed != "" {
			r.serverSeed = seed
		}
	}
}

// WithTimeout bounds each scenario.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger receives chain call logs.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a scenario runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		serverSeed: DefaultServerSeed,
		timeout:    DefaultTimeout,
		logger:     log.New(io.Discard, "", 0),
		accounts:   chain.DevnetAccounts(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes source on a fresh chain. Script errors and failed asserts
// are reported in the Report; the error return is for setup failures.
func (r *Runner) Run(ctx context.Context, name, source string) (*Report, error) {
	host, err := r.newChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}

	start := time.Now()
	vm := NewVM(ctx, host, r.accounts)
	runErr := vm.Execute(r.timeout, source)

	report := &Report{
		Name:     name,
		Calls:    vm.Calls(),
		Failures: vm.Failures(),
		Logs:     vm.GetLogs(),
		Duration: time.Since(start),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	// a timed out script may still hold the host's lock briefly
	hctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if h, err := host.BlockHeight(hctx); err == nil {
		report.BlockHeight = h
	}
	return report, nil
}

// RunFile reads and runs one scenario file.
func (r *Runner) RunFile(ctx context.Context, path string) (*Report, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return r.Run(ctx, filepath.Base(path), string(src))
}

func (r *Runner) newChain(ctx context.Context) (*chain.Host, error) {
	host, err := chain.NewHost(store.NewMemoryStore(), r.serverSeed, r.accounts[0].Address, chain.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	if _, err := host.Deploy(digiwin.New()); err != nil {
		return nil, err
	}
	if err := host.Genesis(ctx, r.accounts, chain.DevnetBalance); err != nil {
		return nil, err
	}
	return host, nil
}
