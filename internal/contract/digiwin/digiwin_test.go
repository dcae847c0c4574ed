package digiwin

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/engine"
	"github.com/MJE43/digiwin/internal/store"
)

const testSeed = "digiwin-test-seed"

var (
	accounts = chain.AccountMap(chain.DevnetAccounts())
	deployer = accounts["deployer"]
	wallet1  = accounts["wallet_1"]
	wallet2  = accounts["wallet_2"]
)

type simnet struct {
	t        *testing.T
	host     *chain.Host
	contract string
}

func newSimnet(t *testing.T) *simnet {
	t.Helper()
	host, err := chain.NewHost(store.NewMemoryStore(), testSeed, deployer)
	require.NoError(t, err)
	principal, err := host.Deploy(New())
	require.NoError(t, err)
	require.NoError(t, host.Genesis(context.Background(), chain.DevnetAccounts(), chain.DevnetBalance))
	return &simnet{t: t, host: host, contract: principal}
}

func (s *simnet) call(fn string, sender string, args ...uint64) *chain.Result {
	s.t.Helper()
	vals := make([]clarity.Value, len(args))
	for i, a := range args {
		vals[i] = clarity.UInt(a)
	}
	res, err := s.host.CallPublic(context.Background(), Name, fn, vals, sender)
	require.NoError(s.t, err)
	return res
}

func (s *simnet) read(fn string, args ...uint64) clarity.Value {
	s.t.Helper()
	vals := make([]clarity.Value, len(args))
	for i, a := range args {
		vals[i] = clarity.UInt(a)
	}
	v, err := s.host.CallReadOnly(context.Background(), Name, fn, vals, deployer)
	require.NoError(s.t, err)
	return v
}

func (s *simnet) balance(principal string) uint64 {
	s.t.Helper()
	b, err := s.host.Balance(context.Background(), principal)
	require.NoError(s.t, err)
	return b
}

// secret recomputes the hidden number of a game created at height.
func (s *simnet) secret(id, height, min, max uint64) uint64 {
	return engine.UintInRange(engine.BlockSeed(testSeed, height), s.contract, id, min, max)
}

func TestCreateGame(t *testing.T) {
	s := newSimnet(t)

	res := s.call("create-game", deployer, 1, 100, 100000)
	assert.Equal(t, "(ok u0)", res.Value.String())

	res = s.call("create-game", wallet1, 5, 6, 0)
	assert.Equal(t, "(ok u1)", res.Value.String())

	assert.Equal(t, "u2", s.read("get-game-count").String())
	assert.Equal(t, "(some u0)", s.read("get-prize-pool", 0).String())
	require.Len(t, res.Receipt.Events, 1)
	assert.Equal(t, "game-created", res.Receipt.Events[0].Topic)
}

func TestCreateGameRejectsBadRange(t *testing.T) {
	s := newSimnet(t)

	tests := []struct {
		name     string
		min, max uint64
	}{
		{"inverted", 100, 10},
		{"equal", 100, 100},
		{"equal zero", 0, 0},
	}
	for _, tt := range tests {
		res := s.call("create-game", deployer, tt.min, tt.max, 1000)
		assert.Equal(t, "(err u105)", res.Value.String(), tt.name)
		assert.False(t, res.Receipt.Committed, tt.name)
	}

	assert.Equal(t, "u0", s.read("get-game-count").String())
	assert.Equal(t, "(ok u0)", s.call("create-game", deployer, 1, 2, 0).Value.String())
}

func TestGuessOutOfRange(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 10, 20, 50)
	before := s.balance(wallet1)

	for _, v := range []uint64{21, 9, 0, math.MaxUint64} {
		res := s.call("guess", wallet1, 0, v)
		assert.Equal(t, "(err u103)", res.Value.String(), "guess %d", v)
	}

	assert.Equal(t, "(some u0)", s.read("get-prize-pool", 0).String())
	assert.Contains(t, s.read("get-game-info", 0).String(), `(status "open")`)
	assert.Equal(t, before, s.balance(wallet1))
}

func TestGuessAddsFeeToPool(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 1, 100, 1000)
	secret := s.secret(0, 1, 1, 100)

	miss := uint64(50)
	if secret == miss {
		miss = 51
	}
	res := s.call("guess", wallet1, 0, miss)
	assert.Equal(t, "(ok false)", res.Value.String())
	assert.Equal(t, "(some u1000)", s.read("get-prize-pool", 0).String())

	res = s.call("guess", wallet2, 0, miss)
	assert.Equal(t, "(ok false)", res.Value.String())
	assert.Equal(t, "(some u2000)", s.read("get-prize-pool", 0).String())

	assert.Equal(t, chain.DevnetBalance-1000, s.balance(wallet1))
	assert.Equal(t, uint64(2000), s.balance(s.contract))
}

func TestTwoValueGameHasExactlyOneWinner(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 1, 2, 10)

	r1 := s.call("guess", wallet1, 0, 1)
	r2 := s.call("guess", wallet1, 0, 2)

	// the second guess is rejected with 102 if the first one won
	if r1.Value.String() == "(ok true)" {
		assert.Equal(t, "(err u102)", r2.Value.String())
	} else {
		assert.Equal(t, "(ok false)", r1.Value.String())
		assert.Equal(t, "(ok true)", r2.Value.String())
	}

	info := s.read("get-game-info", 0).String()
	assert.Contains(t, info, `(status "won")`)
	assert.Contains(t, info, "(winner (some '"+wallet1+"))")

	assert.Equal(t, "(err u102)", s.call("guess", wallet2, 0, 1).Value.String())
}

func TestGuessAfterWinChangesNothing(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 1, 10, 500)
	secret := s.secret(0, 1, 1, 10)

	res := s.call("guess", wallet1, 0, secret)
	require.Equal(t, "(ok true)", res.Value.String())

	info := s.read("get-game-info", 0).String()
	pool := s.read("get-prize-pool", 0).String()
	bal := s.balance(wallet2)

	for v := uint64(1); v <= 10; v++ {
		assert.Equal(t, "(err u102)", s.call("guess", wallet2, 0, v).Value.String())
	}
	assert.Equal(t, info, s.read("get-game-info", 0).String())
	assert.Equal(t, pool, s.read("get-prize-pool", 0).String())
	assert.Equal(t, bal, s.balance(wallet2))
}

func TestUnknownGame(t *testing.T) {
	s := newSimnet(t)

	assert.Equal(t, "(err u101)", s.call("guess", wallet1, 9999, 50).Value.String())
	assert.Equal(t, "none", s.read("get-prize-pool", 9999).String())
	assert.Equal(t, "none", s.read("get-game-info", 9999).String())

	s.call("create-game", deployer, 1, 100, 1)
	assert.Equal(t, "(err u101)", s.call("guess", wallet1, 1, 50).Value.String())
}

func TestWinnerIsPaidThePool(t *testing.T) {
	s := newSimnet(t)
	const fee = 2_000_000
	s.call("create-game", deployer, 1, 50, fee)
	secret := s.secret(0, 1, 1, 50)

	// two misses by wallet2, then wallet1 hits
	misses := 0
	for v := uint64(1); v <= 50 && misses < 2; v++ {
		if v == secret {
			continue
		}
		require.Equal(t, "(ok false)", s.call("guess", wallet2, 0, v).Value.String())
		misses++
	}

	res := s.call("guess", wallet1, 0, secret)
	assert.Equal(t, "(ok true)", res.Value.String())

	// wallet1 paid one fee and received three
	assert.Equal(t, chain.DevnetBalance+2*fee, s.balance(wallet1))
	assert.Equal(t, chain.DevnetBalance-2*fee, s.balance(wallet2))
	assert.Zero(t, s.balance(s.contract))

	// the pool keeps its historical total
	assert.Equal(t, "(some u6000000)", s.read("get-prize-pool", 0).String())

	info := s.read("get-game-info", 0)
	some, ok := info.(clarity.Optional)
	require.True(t, ok)
	inner, ok := some.Unwrap()
	require.True(t, ok)
	tuple := inner.(clarity.Tuple)

	guesses, _ := tuple.Get("guesses")
	assert.Equal(t, "u3", guesses.String())
	_, hasSecret := tuple.Get("secret")
	assert.False(t, hasSecret)

	var topics []string
	for _, e := range res.Receipt.Events {
		topics = append(topics, e.Topic)
	}
	assert.Equal(t, []string{"stx-transfer", "stx-transfer", "game-won"}, topics)
}

func TestGuessWithoutFundsFails(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 1, 100, chain.DevnetBalance+1)

	res := s.call("guess", wallet1, 0, 50)
	assert.Equal(t, "(err u104)", res.Value.String())
	assert.Equal(t, "(some u0)", s.read("get-prize-pool", 0).String())
	assert.Contains(t, s.read("get-game-info", 0).String(), "(guesses u0)")
	assert.Equal(t, chain.DevnetBalance, s.balance(wallet1))
}

func TestZeroFeeGame(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", deployer, 1, 3, 0)
	secret := s.secret(0, 1, 1, 3)

	res := s.call("guess", wallet1, 0, secret)
	assert.Equal(t, "(ok true)", res.Value.String())
	assert.Equal(t, "(some u0)", s.read("get-prize-pool", 0).String())
	assert.Equal(t, chain.DevnetBalance, s.balance(wallet1))
}

func TestSecretsAreInRangeAndVary(t *testing.T) {
	s := newSimnet(t)
	seen := map[uint64]bool{}
	for i := uint64(0); i < 30; i++ {
		res := s.call("create-game", deployer, 1, 1000, 0)
		require.Equal(t, clarity.OkUInt(i).String(), res.Value.String())
		secret := s.secret(i, res.Receipt.Height, 1, 1000)
		assert.GreaterOrEqual(t, secret, uint64(1))
		assert.LessOrEqual(t, secret, uint64(1000))
		seen[secret] = true
	}
	assert.Greater(t, len(seen), 20)
}

func TestGameInfoTuple(t *testing.T) {
	s := newSimnet(t)
	s.call("create-game", wallet2, 3, 7, 25)

	info := s.read("get-game-info", 0).String()
	want := "(some (tuple (created-at u1) (creator '" + wallet2 + ") (fee u25) (guesses u0) (id u0) (max u7) (min u3) (prize-pool u0) (status \"open\") (winner none)))"
	assert.Equal(t, want, info)

	parsed, err := clarity.Parse(info)
	require.NoError(t, err)
	assert.True(t, clarity.Equal(parsed, s.read("get-game-info", 0)))
}

func TestFunctionsAreDeclared(t *testing.T) {
	s := newSimnet(t)
	infos := s.host.Contracts()
	require.Len(t, infos, 1)

	var names []string
	for _, f := range infos[0].Functions {
		names = append(names, f.Access+":"+f.Name)
	}
	assert.Equal(t, "public:create-game,public:guess,read-only:get-prize-pool,read-only:get-game-info,read-only:get-game-count",
		strings.Join(names, ","))
}

func TestCodeName(t *testing.T) {
	assert.Equal(t, "ERR_GAME_NOT_FOUND", CodeName(CodeGameNotFound))
	assert.Equal(t, "ERR_INVALID_PARAMS", CodeName(105))
	assert.Empty(t, CodeName(7))
}

func TestSQLiteBackedGame(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, t.TempDir()+"/chain.db")
	require.NoError(t, err)
	defer st.Close()

	host, err := chain.NewHost(st, testSeed, deployer)
	require.NoError(t, err)
	principal, err := host.Deploy(New())
	require.NoError(t, err)
	require.NoError(t, host.Genesis(ctx, chain.DevnetAccounts(), chain.DevnetBalance))

	res, err := host.CallPublic(ctx, Name, "create-game", []clarity.Value{clarity.UInt(1), clarity.UInt(2), clarity.UInt(10)}, deployer)
	require.NoError(t, err)
	assert.Equal(t, "(ok u0)", res.Value.String())

	secret := engine.UintInRange(engine.BlockSeed(testSeed, 1), principal, 0, 1, 2)
	res, err = host.CallPublic(ctx, Name, "guess", []clarity.Value{clarity.UInt(0), clarity.UInt(secret)}, wallet1)
	require.NoError(t, err)
	assert.Equal(t, "(ok true)", res.Value.String())

	info, err := host.CallReadOnly(ctx, Name, "get-game-info", []clarity.Value{clarity.UInt(0)}, wallet1)
	require.NoError(t, err)
	assert.Contains(t, info.String(), `(status "won")`)

	bal, err := host.Balance(ctx, wallet1)
	require.NoError(t, err)
	assert.Equal(t, chain.DevnetBalance, bal)
}
