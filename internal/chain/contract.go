package chain

import (
	"fmt"

	"github.com/MJE43/digiwin/internal/clarity"
)

// Kind distinguishes state-changing functions from queries.
type Kind int

const (
	Public Kind = iota
	ReadOnly
)

func (k Kind) String() string {
	if k == ReadOnly {
		return "read-only"
	}
	return "public"
}

// Param declares a typed function parameter.
type Param struct {
	Name string
	Type clarity.Type
}

// Handler executes a contract function. Public handlers must return a
// clarity.Response; a non-nil error aborts the call as a runtime fault.
type Handler func(cc *CallContext, args []clarity.Value) (clarity.Value, error)

// Function is one entry point of a contract.
type Function struct {
	Name    string
	Kind    Kind
	Params  []Param
	Handler Handler
}

// Contract is deployable code: a name and its functions.
type Contract interface {
	Name() string
	Functions() []Function
}

// FunctionInfo describes a function for listings.
type FunctionInfo struct {
	Name   string      `json:"name"`
	Access string      `json:"access"`
	Args   []ParamInfo `json:"args"`
}

// ParamInfo is the printable form of a Param.
type ParamInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ContractInfo describes a deployed contract.
type ContractInfo struct {
	Principal string         `json:"principal"`
	Name      string         `json:"name"`
	Functions []FunctionInfo `json:"functions"`
}

type deployed struct {
	principal string
	name      string
	functions map[string]Function
	order     []string
}

func (d *deployed) info() ContractInfo {
	ci := ContractInfo{Principal: d.principal, Name: d.name}
	for _, name := range d.order {
		fn := d.functions[name]
		fi := FunctionInfo{Name: fn.Name, Access: fn.Kind.String(), Args: []ParamInfo{}}
		for _, p := range fn.Params {
			fi.Args = append(fi.Args, ParamInfo{Name: p.Name, Type: p.Type.String()})
		}
		ci.Functions = append(ci.Functions, fi)
	}
	return ci
}

func checkArgs(fn Function, args []clarity.Value) error {
	if len(args) != len(fn.Params) {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvalidArgs, fn.Name, len(fn.Params), len(args))
	}
	for i, p := range fn.Params {
		if args[i] == nil {
			return fmt.Errorf("%w: %s argument %s is missing", ErrInvalidArgs, fn.Name, p.Name)
		}
		if got := args[i].Type(); got != p.Type {
			return fmt.Errorf("%w: %s argument %s must be %s, got %s", ErrInvalidArgs, fn.Name, p.Name, p.Type, got)
		}
	}
	return nil
}
