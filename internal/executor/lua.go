package executor

import (
	"context"
	"fmt"
	"strings"

	glua "github.com/yuin/gopher-lua"
	luaparse "github.com/yuin/gopher-lua/parse"

	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

// scriptName labels compiled chunks in Lua stack traces.
const scriptName = "bridge-script"

// maxValueDepth bounds table conversion in both directions. A
// self-referencing table would otherwise recurse until the goroutine
// stack overflows, which is process-fatal and beyond any recover.
const maxValueDepth = 128

// runScript evaluates code as Lua in a fresh state with the host API
// modules and params installed. The script defines run(params) or, in
// the legacy form, assigns to the result global; when both are present
// the function form wins.
func (e *Executor) runScript(ctx context.Context, code string, params map[string]any) *wire.Envelope {
	proto, err := e.compile(code)
	if err != nil {
		return wire.Errf("Script execution error:\n%v", err)
	}

	L := glua.NewState()
	defer L.Close()

	// The dispatcher bounds each call; scripts that outrun the budget
	// are interrupted instead of wedging the main thread forever.
	L.SetContext(ctx)

	for _, m := range e.modules {
		if err := m.Register(L); err != nil {
			return wire.Errf("Host module '%s' failed to load: %v", m.Name(), err)
		}
	}

	paramsLV, err := toLValue(L, params, 0)
	if err != nil {
		return wire.Errf("Invalid params: %v", err)
	}

	L.SetGlobal("params", paramsLV)

	L.Push(L.NewFunctionFromProto(proto))

	if err := L.PCall(0, 0, nil); err != nil {
		return scriptError(err)
	}

	var (
		result    any
		resultErr error
	)

	if fn, ok := L.GetGlobal("run").(*glua.LFunction); ok {
		L.Push(fn)
		L.Push(paramsLV)

		if err := L.PCall(1, 1, nil); err != nil {
			return scriptError(err)
		}

		result, resultErr = fromLValue(L.Get(-1), 0)
		L.Pop(1)
	} else {
		result, resultErr = fromLValue(L.GetGlobal("result"), 0)
	}

	if resultErr != nil {
		return wire.Errf("Script result is not JSON-serializable: %v", resultErr)
	}

	if result == nil {
		return wire.Errf("Script completed but did not set 'result'. " +
			"Define a run(params) function or assign to the 'result' variable.")
	}

	return wire.FromValue(result)
}

// compile returns the cached proto for code, compiling on first sight.
func (e *Executor) compile(code string) (*glua.FunctionProto, error) {
	if proto, ok := e.chunks.Get(code); ok {
		return proto, nil
	}

	chunk, err := luaparse.Parse(strings.NewReader(code), scriptName)
	if err != nil {
		return nil, err
	}

	proto, err := glua.Compile(chunk, scriptName)
	if err != nil {
		return nil, err
	}

	e.chunks.Add(code, proto)

	return proto, nil
}

// scriptError converts a Lua runtime failure into an error envelope,
// carrying the stack trace when the interpreter produced one.
func scriptError(err error) *wire.Envelope {
	if apiErr, ok := err.(*glua.ApiError); ok && apiErr.StackTrace != "" {
		return wire.Errf("Script execution error:\n%v\n%s", apiErr.Object, apiErr.StackTrace)
	}

	return wire.Errf("Script execution error:\n%v", err)
}

// toLValue converts a JSON-decoded Go value into its Lua counterpart.
func toLValue(L *glua.LState, v any, depth int) (glua.LValue, error) {
	if depth > maxValueDepth {
		return glua.LNil, fmt.Errorf("nesting exceeds %d levels", maxValueDepth)
	}

	switch x := v.(type) {
	case nil:
		return glua.LNil, nil
	case bool:
		return glua.LBool(x), nil
	case float64:
		return glua.LNumber(x), nil
	case float32:
		return glua.LNumber(x), nil
	case int:
		return glua.LNumber(x), nil
	case int64:
		return glua.LNumber(x), nil
	case string:
		return glua.LString(x), nil
	case []any:
		tbl := L.NewTable()

		for i, item := range x {
			lv, err := toLValue(L, item, depth+1)
			if err != nil {
				return glua.LNil, err
			}

			tbl.RawSetInt(i+1, lv)
		}

		return tbl, nil
	case map[string]any:
		tbl := L.NewTable()

		for key, item := range x {
			lv, err := toLValue(L, item, depth+1)
			if err != nil {
				return glua.LNil, err
			}

			tbl.RawSetString(key, lv)
		}

		return tbl, nil
	default:
		return glua.LString(fmt.Sprintf("%v", x)), nil
	}
}

// fromLValue converts a Lua value back into a JSON-serializable Go
// value. Tables with contiguous 1..n integer keys become slices;
// everything else becomes a string-keyed map. Conversion fails on
// tables nested past maxValueDepth, which is how a self-referencing
// table surfaces: as an error envelope, never a stack overflow.
func fromLValue(lv glua.LValue, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("nesting exceeds %d levels (circular reference?)", maxValueDepth)
	}

	switch x := lv.(type) {
	case *glua.LNilType:
		return nil, nil
	case glua.LBool:
		return bool(x), nil
	case glua.LNumber:
		return float64(x), nil
	case glua.LString:
		return string(x), nil
	case *glua.LTable:
		if n := x.MaxN(); n > 0 {
			arr := make([]any, 0, n)

			for i := 1; i <= n; i++ {
				item, err := fromLValue(x.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}

				arr = append(arr, item)
			}

			return arr, nil
		}

		obj := map[string]any{}

		var convErr error

		x.ForEach(func(key, val glua.LValue) {
			if convErr != nil {
				return
			}

			item, err := fromLValue(val, depth+1)
			if err != nil {
				convErr = err

				return
			}

			if ks, ok := key.(glua.LString); ok {
				obj[string(ks)] = item
			} else {
				obj[fmt.Sprintf("%v", key)] = item
			}
		})

		if convErr != nil {
			return nil, convErr
		}

		return obj, nil
	default:
		return fmt.Sprintf("%v", lv), nil
	}
}
