// Package node wires configuration, storage, the chain host and the HTTP
// API into the digiwin-node process.
package node

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/MJE43/digiwin/internal/api"
	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/config"
	"github.com/MJE43/digiwin/internal/contract/digiwin"
	"github.com/MJE43/digiwin/internal/engine"
	"github.com/MJE43/digiwin/internal/seedvault"
	"github.com/MJE43/digiwin/internal/store"
)

// seedNetwork names the vault entry the node's server seed lives under
const seedNetwork = "devnet"

// ParseConfig reads DIGIWIN_* variables, then flags, into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "state store: memory or sqlite")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.SeedFile, "seed-file", cfg.SeedFile, "fallback seed file when no OS keyring is available")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "allowed CORS origin")
	fs.BoolVar(&cfg.SkipGenesis, "skip-genesis", cfg.SkipGenesis, "do not fund devnet accounts")
	fs.StringVar(&cfg.GenesisBalance, "genesis-balance", cfg.GenesisBalance, "STX funded to each devnet account at genesis")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Run listens on cfg.Addr and serves until ctx is done.
func Run(ctx context.Context, cfg config.Config, out io.Writer) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return Serve(ctx, cfg, ln, out)
}

// Serve runs the node on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, cfg config.Config, ln net.Listener, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	logger := log.New(out, "[NODE] ", log.LstdFlags)
	startTime := time.Now()

	st, err := openStore(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer st.Close()

	seed, source, err := resolveSeed(cfg)
	if err != nil {
		ln.Close()
		return err
	}
	logger.Printf("server_seed source=%s hash=%s", source, engine.HashSeed(seed)[:16])

	accounts := chain.DevnetAccounts()
	host, err := chain.NewHost(st, seed, accounts[0].Address,
		chain.WithLogger(log.New(out, "[CHAIN] ", log.LstdFlags)))
	if err != nil {
		ln.Close()
		return err
	}
	if _, err := host.Deploy(digiwin.New()); err != nil {
		ln.Close()
		return err
	}
	if !cfg.SkipGenesis {
		if err := host.Genesis(ctx, accounts, cfg.GenesisMicroSTX()); err != nil {
			ln.Close()
			return fmt.Errorf("genesis: %w", err)
		}
	}

	srv := api.NewServer(host,
		api.WithLogOutput(out),
		api.WithAccounts(accounts),
		api.WithAllowedOrigin(cfg.CORSOrigin),
		api.WithRequestTimeout(cfg.RequestTimeout),
	)
	httpServer := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.SecurityLogger().LogSystemStartup(ln.Addr().String(), cfg.Summary())
	logger.Printf("listening addr=%s store=%s", ln.Addr(), cfg.Store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	reason := "context_done"
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		reason = "server_closed"
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown_failed error=%v", err)
		return fmt.Errorf("shutdown: %w", err)
	}

	srv.SecurityLogger().LogSystemShutdown(reason, time.Since(startTime))
	logger.Printf("stopped uptime=%s", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		st, err := store.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// resolveSeed prefers DIGIWIN_SERVER_SEED, then the vault.
func resolveSeed(cfg config.Config) (seed, source string, err error) {
	if cfg.ServerSeed != "" {
		return cfg.ServerSeed, "env", nil
	}

	fallback := cfg.SeedFile
	if fallback == "" {
		fallback = seedvault.DefaultFallbackPath()
	}
	seed, created, err := seedvault.New(seedvault.DefaultService, fallback).LoadOrCreate(seedNetwork)
	if err != nil {
		return "", "", fmt.Errorf("load server seed: %w", err)
	}
	if created {
		return seed, "vault_new", nil
	}
	return seed, "vault", nil
}
