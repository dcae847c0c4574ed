package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/digiwin/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, vars map[string]string) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)
	return cfg
}

func TestParseConfigFlags(t *testing.T) {
	fs := flag.NewFlagSet("digiwin-node", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, []string{"-addr", "127.0.0.1:0", "-store", "sqlite", "-db", "x.db", "-skip-genesis", "-genesis-balance", "42.5"})
	require.NoError(t, err)
	assert.Equal(t, uint64(42_500_000), cfg.GenesisMicroSTX())
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "x.db", cfg.DBPath)
	assert.True(t, cfg.SkipGenesis)
}

func TestParseConfigRejectsBadStore(t *testing.T) {
	fs := flag.NewFlagSet("digiwin-node", flag.ContinueOnError)

	_, err := ParseConfig(fs, []string{"-store", "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIGIWIN_STORE")
}

func TestParseConfigRejectsBadGenesisBalance(t *testing.T) {
	fs := flag.NewFlagSet("digiwin-node", flag.ContinueOnError)

	_, err := ParseConfig(fs, []string{"-genesis-balance", "-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIGIWIN_GENESIS_BALANCE")
}

func TestResolveSeed(t *testing.T) {
	seed, source, err := resolveSeed(testConfig(t, map[string]string{"DIGIWIN_SERVER_SEED": "from-env"}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", seed)
	assert.Equal(t, "env", source)

	keyring.MockInit()
	cfg := testConfig(t, map[string]string{"DIGIWIN_SEED_FILE": filepath.Join(t.TempDir(), "seeds.json")})

	first, source, err := resolveSeed(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vault_new", source)

	second, source, err := resolveSeed(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vault", source)
	assert.Equal(t, first, second)
}

func serve(t *testing.T, cfg config.Config) (base string, out *syncBuffer, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	out = &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, cfg, ln, out) }()

	base = "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health/live")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	return base, out, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("node did not stop")
		}
	}
}

func TestServeMemoryStore(t *testing.T) {
	cfg := testConfig(t, map[string]string{"DIGIWIN_SERVER_SEED": "node-test", "DIGIWIN_GENESIS_BALANCE": "7"})
	base, out, stop := serve(t, cfg)

	acct, err := http.Get(base + "/api/v1/accounts/wallet_1")
	require.NoError(t, err)
	var balance struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(acct.Body).Decode(&balance))
	acct.Body.Close()
	assert.Equal(t, "7000000", balance.Balance)

	body := strings.NewReader(`{"sender":"deployer","args":["u1","u100","u1000"]}`)
	resp, err := http.Post(base+"/api/v1/contracts/digiwin/public/create-game", "application/json", body)
	require.NoError(t, err)
	var call struct {
		Result    string `json:"result"`
		Committed bool   `json:"committed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&call))
	resp.Body.Close()
	assert.Equal(t, "(ok u0)", call.Result)
	assert.True(t, call.Committed)

	require.NoError(t, stop())

	logs := out.String()
	assert.Contains(t, logs, "[NODE] ")
	assert.Contains(t, logs, "server_seed source=env")
	assert.Contains(t, logs, "system_startup")
	assert.Contains(t, logs, "system_shutdown reason=context_done")
	assert.Contains(t, logs, "[CHAIN] ")
	assert.NotContains(t, logs, "node-test")
}

func TestServeSQLiteStorePersists(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"DIGIWIN_SERVER_SEED": "node-test",
		"DIGIWIN_STORE":       "sqlite",
		"DIGIWIN_DB_PATH":     filepath.Join(t.TempDir(), "chain.db"),
	})

	base, _, stop := serve(t, cfg)
	resp, err := http.Post(base+"/api/v1/contracts/digiwin/public/create-game", "application/json",
		strings.NewReader(`{"sender":"deployer","args":["u1","u10","u5"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, stop())

	// a restart keeps games and does not re-run genesis
	base, _, stop = serve(t, cfg)
	defer func() { require.NoError(t, stop()) }()

	resp, err = http.Get(base + "/api/v1/games/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(base + "/api/v1/info")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var info struct {
		BlockHeight uint64 `json:"block_height"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&info))
	assert.Equal(t, uint64(1), info.BlockHeight)
}

func TestServeBadSQLitePath(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"DIGIWIN_SERVER_SEED": "node-test",
		"DIGIWIN_STORE":       "sqlite",
		"DIGIWIN_DB_PATH":     filepath.Join(t.TempDir(), "missing", "dir", "chain.db"),
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = Serve(context.Background(), cfg, ln, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sqlite store")
}
