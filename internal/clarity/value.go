// Package clarity models the values exchanged with contracts: unsigned
// integers, booleans, ASCII strings, principals, tuples, optionals and
// responses. String renders the canonical form used by Clarity tooling,
// e.g. (ok u0), (err u105), (some (tuple (status "won"))).
package clarity

import (
	"sort"
	"strconv"
	"strings"
)

// Type identifies the kind of a Value.
type Type uint8

const (
	TypeUInt Type = iota + 1
	TypeBool
	TypeStringASCII
	TypePrincipal
	TypeTuple
	TypeOptionalSome
	TypeOptionalNone
	TypeResponseOk
	TypeResponseErr
)

var typeNames = map[Type]string{
	TypeUInt:         "uint",
	TypeBool:         "bool",
	TypeStringASCII:  "string-ascii",
	TypePrincipal:    "principal",
	TypeTuple:        "tuple",
	TypeOptionalSome: "some",
	TypeOptionalNone: "none",
	TypeResponseOk:   "ok",
	TypeResponseErr:  "err",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Value is any Clarity value.
type Value interface {
	Type() Type
	String() string
}

// UInt is a 64-bit unsigned integer. Clarity's uint is 128 bits wide; the
// game never needs more than 64.
type UInt uint64

func (UInt) Type() Type { return TypeUInt }
func (v UInt) String() string { return "u" + strconv.FormatUint(uint64(v), 10) }

// Bool is true or false.
type Bool bool

func (Bool) Type() Type { return TypeBool }
func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}

// StringASCII is an ASCII string literal.
type StringASCII string

func (StringASCII) Type() Type { return TypeStringASCII }
func (v StringASCII) String() string { return strconv.Quote(string(v)) }

// Principal is a standard (ST...) or contract (ST....name) principal.
type Principal string

func (Principal) Type() Type { return TypePrincipal }
func (v Principal) String() string { return "'" + string(v) }

// Tuple is a record with named fields. Fields render sorted by name.
type Tuple struct {
	fields map[string]Value
}

// NewTuple copies fields into a new tuple.
func NewTuple(fields map[string]Value) Tuple {
	t := Tuple{fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		t.fields[k] = v
	}
	return t
}

func (Tuple) Type() Type { return TypeTuple }

// Get returns the field with the given name.
func (t Tuple) Get(name string) (Value, bool) {
	v, ok := t.fields[name]
	return v, ok
}

// Keys returns the field names in sorted order.
func (t Tuple) Keys() []string {
	keys := make([]string, 0, len(t.fields))
	for k := range t.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tuple) String() string {
	var b strings.Builder
	b.WriteString("(tuple")
	for _, k := range t.Keys() {
		b.WriteString(" (")
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(t.fields[k].String())
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// Optional is either (some v) or none.
type Optional struct {
	value Value
}

// Some wraps v in an optional.
func Some(v Value) Optional { return Optional{value: v} }

// None is the empty optional.
func None() Optional { return Optional{} }

func (o Optional) Type() Type {
	if o.value == nil {
		return TypeOptionalNone
	}
	return TypeOptionalSome
}

// Unwrap returns the wrapped value and whether it is present.
func (o Optional) Unwrap() (Value, bool) { return o.value, o.value != nil }

func (o Optional) String() string {
	if o.value == nil {
		return "none"
	}
	return "(some " + o.value.String() + ")"
}

// Response is the result of a public function: (ok v) or (err v).
type Response struct {
	ok    bool
	value Value
}

// Ok builds a committed response.
func Ok(v Value) Response { return Response{ok: true, value: v} }

// Err builds an aborted response.
func Err(v Value) Response { return Response{ok: false, value: v} }

// OkUInt is shorthand for (ok uN).
func OkUInt(n uint64) Response { return Ok(UInt(n)) }

// ErrUInt is shorthand for (err uN), the usual contract error form.
func ErrUInt(code uint64) Response { return Err(UInt(code)) }

func (r Response) Type() Type {
	if r.ok {
		return TypeResponseOk
	}
	return TypeResponseErr
}

// IsOk reports whether the response is (ok ...).
func (r Response) IsOk() bool { return r.ok }

// Inner returns the wrapped value.
func (r Response) Inner() Value { return r.value }

func (r Response) String() string {
	if r.ok {
		return "(ok " + r.value.String() + ")"
	}
	return "(err " + r.value.String() + ")"
}

// AsUInt returns the integer held by v when v is a UInt.
func AsUInt(v Value) (uint64, bool) {
	u, ok := v.(UInt)
	return uint64(u), ok
}

// Equal compares two values by their canonical rendering.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Type() == b.Type() && a.String() == b.String()
}
