package declare

import (
	"fmt"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// celMaxArity bounds the overloads declared for each registry function; CEL
// has no variadic functions.
const celMaxArity = 3

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...EvaluatorOption) Evaluator {
	cfg := applyEvaluatorOptions(opts)
	return &celEvaluator{cache: cfg.cache, registry: cfg.registry}
}

func (e *celEvaluator) Engine() string { return EngineCEL }

func (e *celEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(EngineCEL, fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaults()
	vars := ctx.variables()
	program, err := e.loadOrCompile(expression, vars)
	if err != nil {
		return nil, wrapEvaluationError(EngineCEL, expression, ctx.Binding, err)
	}
	out, _, err := program.Eval(vars)
	if err != nil {
		return nil, wrapEvaluationError(EngineCEL, expression, ctx.Binding, err)
	}
	return out.Value(), nil
}

// loadOrCompile keys the cache on the declared variable names as well as the
// expression, since the CEL environment is typed by them.
func (e *celEvaluator) loadOrCompile(expression string, vars map[string]any) (celgo.Program, error) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	key := EngineCEL + ":" + strings.Join(names, ",") + ":" + expression

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(names)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv(names []string) (*celgo.Env, error) {
	opts := make([]celgo.EnvOption, 0, len(names))
	for _, name := range names {
		switch name {
		case "now":
			opts = append(opts, celgo.Variable(name, celgo.TimestampType))
		case "index":
			opts = append(opts, celgo.Variable(name, celgo.IntType))
		default:
			opts = append(opts, celgo.Variable(name, celgo.DynType))
		}
	}
	for _, name := range e.registry.Names() {
		opts = append(opts, celgo.Function(name, e.overloads(name)...))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) overloads(name string) []celgo.FunctionOpt {
	binding := celgo.FunctionBinding(e.callBinding(name))
	out := make([]celgo.FunctionOpt, 0, celMaxArity+1)
	for arity := 0; arity <= celMaxArity; arity++ {
		args := make([]*celgo.Type, arity)
		for i := range args {
			args[i] = celgo.DynType
		}
		out = append(out, celgo.Overload(fmt.Sprintf("%s_dyn_%d", name, arity), args, celgo.DynType, binding))
	}
	return out
}

func (e *celEvaluator) callBinding(name string) func(values ...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		args := make([]any, 0, len(values))
		for _, val := range values {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
