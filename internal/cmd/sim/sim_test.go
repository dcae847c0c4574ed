package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/digiwin/internal/scripting"
)

func writeScenario(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("digiwin-sim", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, []string{"-json", "a.js", "b.js"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "b.js"}, cfg.Scenarios)
	assert.True(t, cfg.JSON)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, scripting.DefaultServerSeed, cfg.ServerSeed)
}

func TestRunRequiresScenario(t *testing.T) {
	err := Run(context.Background(), Config{}, nil, nil)
	require.Error(t, err)
}

func TestRunPassingScenario(t *testing.T) {
	var out, errOut bytes.Buffer
	cfg := Config{
		Scenarios: []string{"../../../scenarios/digiwin.js"},
		Timeout:   5 * time.Second,
		Verbose:   true,
	}

	require.NoError(t, Run(context.Background(), cfg, &out, &errOut))
	assert.Contains(t, out.String(), "PASS digiwin.js calls=14 height=12")
	assert.Contains(t, out.String(), "public ")
	assert.Contains(t, out.String(), "log: finished at height 12")
	assert.Contains(t, errOut.String(), "[CHAIN] call tx=")
}

func TestRunFailingScenario(t *testing.T) {
	good := writeScenario(t, "good.js", `assert(true, "fine")`)
	bad := writeScenario(t, "bad.js", `
		const r = simnet.callPublicFn("digiwin", "guess", [Cl.uint(0), Cl.uint(1)], "wallet_1");
		assertEqual(r.result, Cl.ok(Cl.bool(false)), "guess");
	`)

	var out bytes.Buffer
	err := Run(context.Background(), Config{Scenarios: []string{good, bad}, Timeout: 5 * time.Second}, &out, nil)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 scenarios failed", err.Error())
	assert.Contains(t, out.String(), "PASS good.js")
	assert.Contains(t, out.String(), "FAIL bad.js")
	assert.Contains(t, out.String(), "assert (after call 1): guess: expected (ok false), got (err u101)")
}

func TestRunJSON(t *testing.T) {
	path := writeScenario(t, "one.js", `
		simnet.callPublicFn("digiwin", "create-game", [Cl.uint(1), Cl.uint(3), Cl.uint(7)], "deployer");
	`)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), Config{Scenarios: []string{path}, Timeout: 5 * time.Second, JSON: true}, &out, nil))

	var report scripting.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "one.js", report.Name)
	require.Len(t, report.Calls, 1)
	assert.Equal(t, "(ok u0)", report.Calls[0].Result)
}

func TestRunMissingFile(t *testing.T) {
	err := Run(context.Background(), Config{Scenarios: []string{"does-not-exist.js"}}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}
