package scripting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
)

func run(t *testing.T, source string, opts ...Option) *Report {
	t.Helper()
	report, err := NewRunner(opts...).Run(context.Background(), t.Name(), source)
	require.NoError(t, err)
	return report
}

func TestDigiwinScenarioFile(t *testing.T) {
	report, err := NewRunner().RunFile(context.Background(), "../../scenarios/digiwin.js")
	require.NoError(t, err)

	require.Empty(t, report.Error)
	assert.Empty(t, report.Failures)
	assert.True(t, report.Passed())
	assert.Equal(t, "digiwin.js", report.Name)
	assert.Len(t, report.Calls, 14)
	assert.Equal(t, uint64(12), report.BlockHeight)

	require.NotEmpty(t, report.Logs)
	assert.Equal(t, "finished at height 12", report.Logs[len(report.Logs)-1].Message)

	first := report.Calls[0]
	assert.Equal(t, "public", first.Kind)
	assert.Equal(t, "create-game", first.Function)
	assert.Equal(t, []string{"u1", "u100", "u100000"}, first.Args)
	assert.Equal(t, "(ok u0)", first.Result)
	assert.True(t, first.Committed)
	assert.NotEmpty(t, first.TxID)

	rejected := report.Calls[1]
	assert.Equal(t, "(err u105)", rejected.Result)
	assert.False(t, rejected.Committed)
}

func TestFailedAssertionsAreReported(t *testing.T) {
	report := run(t, `
		const r = simnet.callPublicFn("digiwin", "create-game", [Cl.uint(5), Cl.uint(1), Cl.uint(1)], simnet.deployer);
		assertEqual(r.result, Cl.ok(Cl.uint(0)), "create");
		assert(false, "explicit");
		assert(1 === 1, "never reported");
	`)

	assert.Empty(t, report.Error)
	assert.False(t, report.Passed())
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "create: expected (ok u0), got (err u105)", report.Failures[0].Message)
	assert.Equal(t, 1, report.Failures[0].Call)
	assert.Equal(t, "explicit", report.Failures[1].Message)
}

func TestAccountsAndBalances(t *testing.T) {
	report := run(t, `
		const accounts = simnet.getAccounts();
		assertEqual(accounts.size, 9, "account count");
		const w1 = accounts.get("wallet_1");
		assert(w1.startsWith("ST"), "wallet address");
		const before = simnet.getBalance("wallet_1");
		simnet.callPublicFn("digiwin", "create-game", [Cl.uint(1), Cl.uint(100), Cl.uint(250)], "deployer");
		simnet.callPublicFn("digiwin", "guess", [Cl.uint(0), Cl.uint(200)], "wallet_1");
		assertEqual(Number(before) - Number(simnet.getBalance(w1)), 250, "fee charged");
	`)

	require.Empty(t, report.Error)
	assert.Empty(t, report.Failures)
	assert.Equal(t, chain.DevnetAccounts()[1].Address, report.Calls[1].Sender)
}

func TestHostErrorsThrow(t *testing.T) {
	report := run(t, `
		let caught = "";
		try {
			simnet.callPublicFn("digiwin", "steal", [], "deployer");
		} catch (e) {
			caught = String(e);
		}
		assert(caught.includes("function not found"), "caught: " + caught);
		simnet.callPublicFn("nope", "guess", [Cl.uint(0), Cl.uint(1)], "deployer");
		log("unreachable");
	`)

	assert.Empty(t, report.Failures)
	assert.Contains(t, report.Error, "contract not found")
	require.Len(t, report.Calls, 2)
	assert.NotEmpty(t, report.Calls[0].Error)
	assert.Empty(t, report.Logs)
	assert.Zero(t, report.BlockHeight)
}

func TestClConstructors(t *testing.T) {
	report := run(t, `
		assertEqual(cvToString(Cl.uint(7)), "u7");
		assertEqual(cvToString(Cl.uint("18446744073709551615")), "u18446744073709551615");
		assertEqual(cvToString(Cl.bool(true)), "true");
		assertEqual(cvToString(Cl.stringAscii("won")), '"won"');
		assertEqual(cvToString(Cl.none()), "none");
		assertEqual(cvToString(Cl.some(Cl.uint(1))), "(some u1)");
		assertEqual(cvToString(Cl.error(Cl.uint(105))), "(err u105)");
		assertEqual(cvToString(Cl.tuple({b: Cl.uint(2), a: Cl.bool(false)})), "(tuple (a false) (b u2))");
		assertEqual(cvToString(Cl.principal("deployer")), "'" + simnet.deployer);
		assertEqual(Cl.ok(Cl.uint(0)).value.value, "0");
		assertEqual(cvToString("u5"), "u5");
	`)

	require.Empty(t, report.Error)
	assert.Empty(t, report.Failures)
}

func TestClRejectsBadInput(t *testing.T) {
	for _, src := range []string{
		`Cl.uint(-1)`,
		`Cl.uint(1.5)`,
		`Cl.uint("abc")`,
		`Cl.stringAscii("café")`,
		`Cl.principal("nobody")`,
		`cvToString({})`,
		`simnet.callPublicFn("digiwin", "guess", [5, 1], "deployer")`,
	} {
		report := run(t, src)
		assert.Contains(t, report.Error, "TypeError", src)
	}
}

func TestCallArgsMustBeArray(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"number", `simnet.callPublicFn("digiwin", "create-game", 5, "deployer")`, "args must be an array"},
		{"array-like object", `simnet.callReadOnlyFn("digiwin", "get-game-count", {length: 1e15}, "deployer")`, "args must be an array"},
		{"string", `simnet.callPublicFn("digiwin", "guess", "u0 u1", "deployer")`, "args must be an array"},
		{"too many", `simnet.callPublicFn("digiwin", "guess", new Array(17).fill(Cl.uint(1)), "deployer")`, "too many args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := run(t, tt.src)
			assert.Contains(t, report.Error, "TypeError")
			assert.Contains(t, report.Error, tt.want)
			assert.False(t, report.Passed())
			assert.Zero(t, report.BlockHeight)
		})
	}
}

func TestSandboxGlobals(t *testing.T) {
	report := run(t, `
		assert(typeof require === "undefined", "require");
		assert(typeof fetch === "undefined", "fetch");
		assert(typeof eval === "undefined", "eval");
		assert(typeof Function === "undefined", "Function");
		console.log("hello", Cl.uint(3));
	`)

	require.Empty(t, report.Error)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Logs, 1)
	assert.Equal(t, "hello u3", report.Logs[0].Message)
}

func TestScenarioTimeout(t *testing.T) {
	start := time.Now()
	report := run(t, `while (true) {}`, WithTimeout(100*time.Millisecond))

	assert.Contains(t, report.Error, "timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScenarioCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	report, err := NewRunner().Run(ctx, "spin", `while (true) {}`)
	require.NoError(t, err)
	assert.Contains(t, report.Error, "cancelled")
}

func TestSameSeedSameSecret(t *testing.T) {
	// guess every value until one wins
	src := `
		simnet.callPublicFn("digiwin", "create-game", [Cl.uint(1), Cl.uint(1000), Cl.uint(0)], "deployer");
		for (let v = 1; v <= 1000; v++) {
			const r = simnet.callPublicFn("digiwin", "guess", [Cl.uint(0), Cl.uint(v)], "wallet_1");
			if (cvToString(r.result) === "(ok true)") {
				log(v);
				break;
			}
		}
	`
	a := run(t, src, WithServerSeed("seed-a"))
	b := run(t, src, WithServerSeed("seed-a"))
	require.Len(t, a.Logs, 1)
	require.Len(t, b.Logs, 1)
	assert.Equal(t, a.Logs[0].Message, b.Logs[0].Message)
}

func TestFromJS(t *testing.T) {
	rt := goja.New()

	v, err := fromJS(rt.ToValue(cvMap(clarity.Some(clarity.UInt(4)))))
	require.NoError(t, err)
	assert.Equal(t, "(some u4)", v.String())

	v, err = fromJS(rt.ToValue(true))
	require.NoError(t, err)
	assert.Equal(t, clarity.Bool(true), v)

	_, err = fromJS(rt.ToValue(3))
	assert.Error(t, err)
	_, err = fromJS(goja.Undefined())
	assert.Error(t, err)
	_, err = fromJS(rt.ToValue("u"))
	assert.True(t, strings.Contains(err.Error(), "invalid literal"))
}

func TestCvMap(t *testing.T) {
	m := cvMap(clarity.NewTuple(map[string]clarity.Value{
		"status": clarity.StringASCII("won"),
		"winner": clarity.None(),
	}))
	assert.Equal(t, "tuple", m["type"])
	fields := m["value"].(map[string]interface{})
	assert.Equal(t, "won", fields["status"].(map[string]interface{})["value"])
	assert.Nil(t, fields["winner"].(map[string]interface{})["value"])
}
