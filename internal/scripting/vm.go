package scripting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
)

// maxCallArgs bounds the argument list of a single simnet call.
const maxCallArgs = 16

// LogEntry represents a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// CallRecord is one simnet call made by a scenario.
type CallRecord struct {
	Kind      string   `json:"kind"`
	Contract  string   `json:"contract"`
	Function  string   `json:"function"`
	Args      []string `json:"args"`
	Sender    string   `json:"sender"`
	Result    string   `json:"result,omitempty"`
	Committed bool     `json:"committed,omitempty"`
	Height    uint64   `json:"height,omitempty"`
	TxID      string   `json:"tx_id,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Failure is a failed assert in a scenario. Call is the number of simnet
// calls made before the assert ran.
type Failure struct {
	Message string `json:"message"`
	Call    int    `json:"call"`
}

// VM wraps a goja runtime bound to a chain host. Scenarios see simnet, Cl,
// cvToString, assert, assertEqual and log.
type VM struct {
	runtime   *goja.Runtime
	mu        sync.Mutex
	ctx       context.Context
	host      *chain.Host
	accounts  []chain.Account
	addresses map[string]string

	logs     []LogEntry
	logsMu   sync.Mutex
	maxLogs  int
	calls    []CallRecord
	failures []Failure
}

// NewVM creates a sandboxed runtime whose simnet global drives host.
func NewVM(ctx context.Context, host *chain.Host, accounts []chain.Account) *VM {
	vm := &VM{
		runtime:   goja.New(),
		ctx:       ctx,
		host:      host,
		accounts:  accounts,
		addresses: chain.AccountMap(accounts),
		maxLogs:   500,
	}
	vm.injectGlobalFunctions()
	vm.injectSimnet()
	vm.injectCl()
	return vm
}

// injectGlobalFunctions registers log, console.log, assert, assertEqual
// and cvToString.
func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = vm.display(arg)
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	vm.runtime.Set("assert", func(call goja.FunctionCall) goja.Value {
		if !call.Argument(0).ToBoolean() {
			msg := "assertion failed"
			if len(call.Arguments) > 1 {
				msg = call.Argument(1).String()
			}
			vm.fail(msg)
		}
		return goja.Undefined()
	})

	vm.runtime.Set("assertEqual", func(call goja.FunctionCall) goja.Value {
		got := vm.display(call.Argument(0))
		want := vm.display(call.Argument(1))
		if got != want {
			msg := "values differ"
			if len(call.Arguments) > 2 {
				msg = call.Argument(2).String()
			}
			vm.fail(fmt.Sprintf("%s: expected %s, got %s", msg, want, got))
		}
		return goja.Undefined()
	})

	vm.runtime.Set("cvToString", func(call goja.FunctionCall) goja.Value {
		v, err := fromJS(call.Argument(0))
		if err != nil {
			panic(vm.runtime.NewTypeError(err.Error()))
		}
		return vm.runtime.ToValue(v.String())
	})

	// Block dangerous globals.
	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

func (vm *VM) injectSimnet() {
	simnet := vm.runtime.NewObject()
	simnet.Set("deployer", vm.host.Deployer())

	simnet.Set("getAccounts", func(call goja.FunctionCall) goja.Value {
		m, err := vm.accountsMap()
		if err != nil {
			panic(vm.runtime.NewGoError(err))
		}
		return m
	})

	simnet.Set("blockHeight", func(call goja.FunctionCall) goja.Value {
		h, err := vm.host.BlockHeight(vm.ctx)
		if err != nil {
			panic(vm.runtime.NewGoError(err))
		}
		return vm.runtime.ToValue(h)
	})

	// getBalance(address) returns micro-STX as a decimal string
	simnet.Set("getBalance", func(call goja.FunctionCall) goja.Value {
		bal, err := vm.host.Balance(vm.ctx, vm.resolve(call.Argument(0).String()))
		if err != nil {
			panic(vm.runtime.NewGoError(err))
		}
		return vm.runtime.ToValue(fmt.Sprintf("%d", bal))
	})

	simnet.Set("callPublicFn", func(call goja.FunctionCall) goja.Value {
		contract, function, args, sender := vm.callArgs(call)
		rec := CallRecord{Kind: chain.Public.String(), Contract: contract, Function: function, Args: render(args), Sender: sender}

		res, err := vm.host.CallPublic(vm.ctx, contract, function, args, sender)
		if err != nil {
			rec.Error = err.Error()
			vm.record(rec)
			panic(vm.runtime.NewGoError(err))
		}
		rc := res.Receipt
		rec.Result, rec.Committed, rec.Height, rec.TxID = rc.Result, rc.Committed, rc.Height, rc.TxID.String()
		vm.record(rec)

		events := make([]map[string]interface{}, 0, len(rc.Events))
		for _, e := range rc.Events {
			events = append(events, map[string]interface{}{
				"contract": e.Contract,
				"topic":    e.Topic,
				"value":    e.Value,
			})
		}
		return vm.runtime.ToValue(map[string]interface{}{
			"result":    cvMap(res.Value),
			"committed": rc.Committed,
			"height":    rc.Height,
			"txId":      rc.TxID.String(),
			"events":    events,
		})
	})

	simnet.Set("callReadOnlyFn", func(call goja.FunctionCall) goja.Value {
		contract, function, args, sender := vm.callArgs(call)
		rec := CallRecord{Kind: chain.ReadOnly.String(), Contract: contract, Function: function, Args: render(args), Sender: sender}

		v, err := vm.host.CallReadOnly(vm.ctx, contract, function, args, sender)
		if err != nil {
			rec.Error = err.Error()
			vm.record(rec)
			panic(vm.runtime.NewGoError(err))
		}
		rec.Result = v.String()
		vm.record(rec)

		return vm.runtime.ToValue(map[string]interface{}{"result": cvMap(v)})
	})

	vm.runtime.Set("simnet", simnet)
}

// injectCl registers Clarity value constructors.
func (vm *VM) injectCl() {
	cl := vm.runtime.NewObject()
	wrap := func(build func(call goja.FunctionCall) (clarity.Value, error)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			v, err := build(call)
			if err != nil {
				panic(vm.runtime.NewTypeError(err.Error()))
			}
			return vm.runtime.ToValue(cvMap(v))
		}
	}

	cl.Set("uint", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		n, err := toUint(call.Argument(0))
		return clarity.UInt(n), err
	}))
	cl.Set("bool", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		return clarity.Bool(call.Argument(0).ToBoolean()), nil
	}))
	cl.Set("stringAscii", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		s := call.Argument(0).String()
		for i := 0; i < len(s); i++ {
			if s[i] > 0x7e || s[i] < 0x20 {
				return nil, fmt.Errorf("Cl.stringAscii: non-printable byte at %d", i)
			}
		}
		return clarity.StringASCII(s), nil
	}))
	cl.Set("principal", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		v, err := clarity.Parse("'" + vm.resolve(call.Argument(0).String()))
		if err != nil {
			return nil, fmt.Errorf("Cl.principal: %w", err)
		}
		return v, nil
	}))
	cl.Set("none", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		return clarity.None(), nil
	}))
	cl.Set("some", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		v, err := fromJS(call.Argument(0))
		if err != nil {
			return nil, err
		}
		return clarity.Some(v), nil
	}))
	cl.Set("ok", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		v, err := fromJS(call.Argument(0))
		if err != nil {
			return nil, err
		}
		return clarity.Ok(v), nil
	}))
	cl.Set("error", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		v, err := fromJS(call.Argument(0))
		if err != nil {
			return nil, err
		}
		return clarity.Err(v), nil
	}))
	cl.Set("tuple", wrap(func(call goja.FunctionCall) (clarity.Value, error) {
		obj := call.Argument(0).ToObject(vm.runtime)
		fields := make(map[string]clarity.Value)
		for _, k := range obj.Keys() {
			v, err := fromJS(obj.Get(k))
			if err != nil {
				return nil, fmt.Errorf("tuple field %s: %w", k, err)
			}
			fields[k] = v
		}
		return clarity.NewTuple(fields), nil
	}))

	vm.runtime.Set("Cl", cl)
}

// Execute runs scenario source. The run is interrupted when timeout
// elapses or ctx is done.
func (vm *VM) Execute(timeout time.Duration, source string) error {
	return vm.runWithTimeout(timeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		_, err := vm.runtime.RunString(source)
		if err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// GetLogs returns a copy of the current log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

// Calls returns the simnet calls made so far.
func (vm *VM) Calls() []CallRecord {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]CallRecord, len(vm.calls))
	copy(out, vm.calls)
	return out
}

// Failures returns the failed asserts so far.
func (vm *VM) Failures() []Failure {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]Failure, len(vm.failures))
	copy(out, vm.failures)
	return out
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

func (vm *VM) record(rec CallRecord) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	vm.calls = append(vm.calls, rec)
}

func (vm *VM) fail(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	vm.failures = append(vm.failures, Failure{Message: msg, Call: len(vm.calls)})
}

// display renders Clarity values by their canonical form and anything
// else with JS string conversion.
func (vm *VM) display(v goja.Value) string {
	if cv, err := fromJS(v); err == nil {
		if _, isString := v.Export().(string); !isString {
			return cv.String()
		}
	}
	return v.String()
}

// resolve maps an account name such as wallet_1 to its address
func (vm *VM) resolve(s string) string {
	if addr, ok := vm.addresses[s]; ok {
		return addr
	}
	return s
}

func (vm *VM) accountsMap() (goja.Value, error) {
	m, err := vm.runtime.New(vm.runtime.Get("Map"))
	if err != nil {
		return nil, err
	}
	set, ok := goja.AssertFunction(m.Get("set"))
	if !ok {
		return nil, fmt.Errorf("Map.prototype.set is not a function")
	}
	for _, a := range vm.accounts {
		if _, err := set(m, vm.runtime.ToValue(a.Name), vm.runtime.ToValue(a.Address)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// callArgs reads (contract, function, args, sender) from a simnet call.
func (vm *VM) callArgs(call goja.FunctionCall) (string, string, []clarity.Value, string) {
	contract := call.Argument(0).String()
	function := call.Argument(1).String()

	var args []clarity.Value
	if raw := call.Argument(2); !goja.IsUndefined(raw) && !goja.IsNull(raw) {
		obj := raw.ToObject(vm.runtime)
		if obj.ClassName() != "Array" {
			panic(vm.runtime.NewTypeError("args must be an array"))
		}
		n := int(obj.Get("length").ToInteger())
		if n > maxCallArgs {
			panic(vm.runtime.NewTypeError(fmt.Sprintf("too many args (max %d)", maxCallArgs)))
		}
		args = make([]clarity.Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := fromJS(obj.Get(fmt.Sprintf("%d", i)))
			if err != nil {
				panic(vm.runtime.NewTypeError(fmt.Sprintf("argument %d: %v", i, err)))
			}
			args = append(args, v)
		}
	}

	sender := ""
	if s := call.Argument(3); !goja.IsUndefined(s) && !goja.IsNull(s) {
		sender = vm.resolve(s.String())
	}
	return contract, function, args, sender
}

func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("script execution error: %v", r)
			}
		}()
		done <- fn()
	}()

	var reason string
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		reason = "script execution timeout"
	case <-vm.ctx.Done():
		reason = "script cancelled"
	}

	// Interrupt a runaway script execution.
	vm.runtime.Interrupt(reason)
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", reason, err)
		}
		return fmt.Errorf("%s", reason)
	case <-time.After(200 * time.Millisecond):
		return fmt.Errorf("%s", reason)
	}
}
