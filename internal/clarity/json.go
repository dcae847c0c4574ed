package clarity

import (
	"fmt"
	"strconv"
)

// JSONValue is the wire form of a Value: {"type":"uint","value":"5"}.
// Integers travel as decimal strings so JSON clients never round them.
// none carries a null value.
type JSONValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	Repr  string `json:"repr"`
}

// ToJSON converts v to its wire form.
func ToJSON(v Value) JSONValue {
	out := JSONValue{Type: v.Type().String(), Repr: v.String()}

	switch x := v.(type) {
	case UInt:
		out.Value = strconv.FormatUint(uint64(x), 10)
	case Bool:
		out.Value = bool(x)
	case StringASCII:
		out.Value = string(x)
	case Principal:
		out.Value = string(x)
	case Tuple:
		fields := make(map[string]JSONValue, len(x.fields))
		for k, fv := range x.fields {
			fields[k] = ToJSON(fv)
		}
		out.Value = fields
	case Optional:
		if inner, ok := x.Unwrap(); ok {
			out.Value = ToJSON(inner)
		}
	case Response:
		out.Value = ToJSON(x.Inner())
	}
	return out
}

// ParseArgs parses a list of literal arguments, reporting the index of the
// first bad one.
func ParseArgs(args []string) ([]Value, error) {
	out := make([]Value, 0, len(args))
	for i, a := range args {
		v, err := Parse(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
