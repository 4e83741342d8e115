package resolver

import (
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
)

// whenEnv declares the variables a profile's or override's `when` predicate
// (config.ProfileDefinition.When / config.ChannelOverrides.When) may
// reference. Resolution is entity-level, so the predicate only sees the
// entity being resolved, not the message that triggered resolution.
var whenEnv = mustWhenEnv()

func mustWhenEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("entity_id", cel.IntType),
		cel.Variable("is_channel", cel.BoolType),
	)
	if err != nil {
		panic("resolver: cel environment: " + err.Error())
	}
	return env
}

// programCache memoizes compiled `when` expressions across resolutions;
// the same handful of strings recur on every event for a bound entity.
var programCache sync.Map // map[string]cel.Program

func compileWhen(expr string) (cel.Program, error) {
	if v, ok := programCache.Load(expr); ok {
		return v.(cel.Program), nil
	}
	ast, iss := whenEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := whenEnv.Program(ast)
	if err != nil {
		return nil, err
	}
	programCache.Store(expr, prg)
	return prg, nil
}

// evalWhen reports whether a `when` predicate permits applying the profile
// or override it guards. An empty expression always passes. A compile or
// evaluation error fails open (logs and applies) so a config typo never
// silently drops coverage.
func evalWhen(expr string, entityID int64, isChannel bool) bool {
	if expr == "" {
		return true
	}
	prg, err := compileWhen(expr)
	if err != nil {
		slog.Warn("resolver: invalid when expression, applying unconditionally", "expr", expr, "error", err)
		return true
	}
	out, _, err := prg.Eval(map[string]any{
		"entity_id":  entityID,
		"is_channel": isChannel,
	})
	if err != nil {
		slog.Warn("resolver: when expression eval failed, applying unconditionally", "expr", expr, "error", err)
		return true
	}
	b, ok := out.Value().(bool)
	if !ok {
		slog.Warn("resolver: when expression did not return bool, applying unconditionally", "expr", expr)
		return true
	}
	return b
}
