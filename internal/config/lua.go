package config

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"
)

// LuaConfigParser evaluates a Lua configuration script and reads the
// tapwatch.config table it assigns:
//
//	tapwatch.config = {
//	    interface = os.getenv("TAP") or "tap0",
//	    poll_active = 0.5,
//	    shell_command = { "sudo", "-n", "sh" },
//	}
//
// Keys are the same as the legacy directives.
type LuaConfigParser struct {
	runtime *rt.Runtime
	cleanup func()
	mu      sync.Mutex
}

// luaInitMu serialises library loading: lib.LoadAll writes golua package
// state, so two runtimes must not be initialised at the same time.
var luaInitMu sync.Mutex

// NewLuaConfigParser creates a LuaConfigParser whose script output is discarded.
func NewLuaConfigParser() (*LuaConfigParser, error) {
	return NewLuaConfigParserWithOutput(io.Discard)
}

// NewLuaConfigParserWithOutput creates a LuaConfigParser writing script
// output (print) to stdout.
func NewLuaConfigParserWithOutput(stdout io.Writer) (*LuaConfigParser, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	luaInitMu.Lock()
	defer luaInitMu.Unlock()
	runtime := rt.New(stdout)
	cleanup := lib.LoadAll(runtime)
	return &LuaConfigParser{runtime: runtime, cleanup: cleanup}, nil
}

// Parse executes content and extracts the configuration. A script that
// exceeds the CPU or memory limit is reported as an error.
func (p *LuaConfigParser) Parse(content []byte) (cfg *Config, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// golua panics when a hard limit is reached.
	defer func() {
		if r := recover(); r != nil {
			cfg, err = nil, fmt.Errorf("lua configuration aborted: %v", r)
		}
	}()

	if p.runtime == nil {
		return nil, fmt.Errorf("lua parser is closed")
	}
	p.initGlobal()

	closure, err := p.runtime.CompileAndLoadLuaChunk(
		"config",
		content,
		rt.TableValue(p.runtime.GlobalEnv()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile Lua configuration: %w", err)
	}

	ctx := rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{
			Cpu:    10_000_000,
			Memory: 50 * 1024 * 1024, // 50 MB
		},
	}
	p.runtime.PushContext(ctx)
	defer p.runtime.PopContext()

	if _, err = rt.Call1(p.runtime.MainThread(), rt.FunctionValue(closure)); err != nil {
		return nil, fmt.Errorf("failed to execute Lua configuration: %w", err)
	}
	return p.extractConfig()
}

// initGlobal resets the tapwatch global so earlier scripts do not leak
// into this one.
func (p *LuaConfigParser) initGlobal() {
	global := rt.NewTable()
	global.Set(rt.StringValue("config"), rt.TableValue(rt.NewTable()))
	p.runtime.GlobalEnv().Set(rt.StringValue("tapwatch"), rt.TableValue(global))
}

func (p *LuaConfigParser) extractConfig() (*Config, error) {
	cfg := DefaultConfig()

	globalVal := p.runtime.GlobalEnv().Get(rt.StringValue("tapwatch"))
	if globalVal == rt.NilValue {
		return &cfg, nil
	}
	global, ok := globalVal.TryTable()
	if !ok {
		return nil, fmt.Errorf("tapwatch is not a table")
	}
	table, ok := global.Get(rt.StringValue("config")).TryTable()
	if !ok {
		return nil, fmt.Errorf("tapwatch.config is not a table")
	}

	for _, key := range Keys() {
		val := table.Get(rt.StringValue(key))
		if val == rt.NilValue {
			continue
		}
		if key == "shell_command" {
			if list, ok := val.TryTable(); ok {
				cfg.Shell.Command = stringList(list)
				continue
			}
		}
		s, ok := luaScalar(val)
		if !ok {
			return nil, fmt.Errorf("tapwatch.config.%s: unsupported value type", key)
		}
		if _, err := apply(&cfg, key, s); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Close releases resources associated with the parser's Lua runtime.
func (p *LuaConfigParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleanup != nil {
		luaInitMu.Lock()
		p.cleanup()
		luaInitMu.Unlock()
		p.cleanup = nil
	}
	p.runtime = nil
	return nil
}

// luaScalar renders a string, boolean or number as directive text.
func luaScalar(val rt.Value) (string, bool) {
	if s, ok := val.TryString(); ok {
		return s, true
	}
	if b, ok := val.TryBool(); ok {
		if b {
			return "yes", true
		}
		return "no", true
	}
	if n, ok := val.TryInt(); ok {
		return strconv.FormatInt(n, 10), true
	}
	if f, ok := val.TryFloat(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// stringList reads the array part of a Lua table as strings, stopping at
// the first nil.
func stringList(t *rt.Table) []string {
	var out []string
	for i := int64(1); ; i++ {
		v := t.Get(rt.IntValue(i))
		if v == rt.NilValue {
			return out
		}
		if s, ok := luaScalar(v); ok {
			out = append(out, s)
		}
	}
}
