package scripting

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/MJE43/digiwin/internal/clarity"
)

// maxSafeInteger is the largest integer a JS number holds exactly.
const maxSafeInteger = 1<<53 - 1

// cvMap is the script-side form of a value: {type, repr, value}. Nested
// values (tuple fields, some, ok, err) are cvMaps themselves.
func cvMap(v clarity.Value) map[string]interface{} {
	out := map[string]interface{}{
		"type": v.Type().String(),
		"repr": v.String(),
	}
	switch x := v.(type) {
	case clarity.Tuple:
		fields := make(map[string]interface{}, len(x.Keys()))
		for _, k := range x.Keys() {
			f, _ := x.Get(k)
			fields[k] = cvMap(f)
		}
		out["value"] = fields
	case clarity.Optional:
		out["value"] = nil
		if inner, ok := x.Unwrap(); ok {
			out["value"] = cvMap(inner)
		}
	case clarity.Response:
		out["value"] = cvMap(x.Inner())
	default:
		out["value"] = clarity.ToJSON(v).Value
	}
	return out
}

// fromJS reads a value passed in by a script: a cvMap (anything with a
// repr), a literal string such as "u5", or a JS boolean.
func fromJS(v goja.Value) (clarity.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("missing value")
	}
	switch x := v.Export().(type) {
	case string:
		return clarity.Parse(x)
	case bool:
		return clarity.Bool(x), nil
	case map[string]interface{}:
		repr, ok := x["repr"].(string)
		if !ok {
			return nil, fmt.Errorf("object has no repr; build values with Cl")
		}
		return clarity.Parse(repr)
	default:
		return nil, fmt.Errorf("cannot use %T as a Clarity value; build values with Cl", x)
	}
}

// toUint accepts non-negative integral numbers, bigints and decimal
// strings (optionally u-prefixed).
func toUint(v goja.Value) (uint64, error) {
	switch x := v.Export().(type) {
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("Cl.uint: negative value %d", x)
		}
		return uint64(x), nil
	case float64:
		if x < 0 || x != math.Trunc(x) || x > maxSafeInteger {
			return 0, fmt.Errorf("Cl.uint: %v is not a safe unsigned integer; pass a string or bigint", x)
		}
		return uint64(x), nil
	case *big.Int:
		if !x.IsUint64() {
			return 0, fmt.Errorf("Cl.uint: %s out of range", x)
		}
		return x.Uint64(), nil
	case string:
		n, err := strconv.ParseUint(strings.TrimPrefix(x, "u"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("Cl.uint: %q is not an unsigned integer", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("Cl.uint: unsupported argument %v", v)
	}
}

func render(args []clarity.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}
