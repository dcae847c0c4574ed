package clarity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"uint", UInt(1000), "u1000"},
		{"bool", Bool(true), "true"},
		{"string", StringASCII("won"), `"won"`},
		{"principal", Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"), "'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"},
		{"ok", OkUInt(0), "(ok u0)"},
		{"err", ErrUInt(105), "(err u105)"},
		{"some", Some(UInt(1000)), "(some u1000)"},
		{"none", None(), "none"},
		{
			"tuple sorted",
			NewTuple(map[string]Value{"status": StringASCII("won"), "min": UInt(1), "fee": UInt(10)}),
			`(tuple (fee u10) (min u1) (status "won"))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, TypeOptionalNone, None().Type())
	assert.Equal(t, TypeOptionalSome, Some(Bool(false)).Type())
	assert.Equal(t, TypeResponseOk, Ok(Bool(true)).Type())
	assert.Equal(t, TypeResponseErr, ErrUInt(1).Type())
	assert.Equal(t, "string-ascii", TypeStringASCII.String())
	assert.Equal(t, "unknown", Type(0).String())
}

func TestTupleIsCopied(t *testing.T) {
	fields := map[string]Value{"a": UInt(1)}
	tup := NewTuple(fields)
	fields["a"] = UInt(2)

	v, ok := tup.Get("a")
	require.True(t, ok)
	assert.Equal(t, UInt(1), v)

	_, ok = tup.Get("missing")
	assert.False(t, ok)
}

func TestParseRoundTrip(t *testing.T) {
	literals := []string{
		"u0",
		"u18446744073709551615",
		"true",
		"false",
		`"hello world"`,
		"'ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5",
		"'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.digiwin",
		"none",
		"(some u1000)",
		"(ok true)",
		"(err u102)",
		`(some (tuple (id u0) (status "won") (winner (some 'ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5))))`,
	}

	for _, lit := range literals {
		t.Run(lit, func(t *testing.T) {
			v, err := Parse(lit)
			require.NoError(t, err)
			assert.Equal(t, lit, v.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	bad := []string{
		"",
		"5",
		"u",
		"u-1",
		"u18446744073709551616",
		"maybe",
		`"unterminated`,
		`"café"`,
		"'",
		"'st1lower",
		"'ST1ABC.",
		"(some u1",
		"(list u1 u2)",
		"(tuple (a u1) b)",
		"u1 u2",
	}

	for _, lit := range bad {
		t.Run(lit, func(t *testing.T) {
			_, err := Parse(lit)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
		})
	}
}

func TestParseArgs(t *testing.T) {
	vals, err := ParseArgs([]string{"u1", " u100 ", "u10"})
	require.NoError(t, err)
	assert.Equal(t, []Value{UInt(1), UInt(100), UInt(10)}, vals)

	_, err = ParseArgs([]string{"u1", "oops"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")
}

func TestEqual(t *testing.T) {
	parsed, err := Parse("(ok u3)")
	require.NoError(t, err)
	assert.True(t, Equal(OkUInt(3), parsed))
	assert.False(t, Equal(OkUInt(3), ErrUInt(3)))
	assert.False(t, Equal(UInt(1), nil))
	assert.True(t, Equal(nil, nil))
}

func TestAccessors(t *testing.T) {
	n, ok := AsUInt(UInt(7))
	assert.True(t, ok)
	assert.Equal(t, uint64(7), n)

	_, ok = AsUInt(Bool(true))
	assert.False(t, ok)
}

func TestWireFormEncoding(t *testing.T) {
	raw, err := json.Marshal(ToJSON(OkUInt(42)))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ok", decoded["type"])
	assert.Equal(t, "(ok u42)", decoded["repr"])

	inner := decoded["value"].(map[string]any)
	assert.Equal(t, "uint", inner["type"])
	assert.Equal(t, "42", inner["value"])

	raw, err = json.Marshal(ToJSON(None()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"none","value":null,"repr":"none"}`, string(raw))

	raw, err = json.Marshal(ToJSON(Bool(false)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bool","value":false,"repr":"false"}`, string(raw))
}
