package declare

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEngine indicates an expression engine name that is not built in.
	ErrUnknownEngine = errors.New("declare: unknown expression engine")
	// ErrEngineUnavailable indicates an engine compiled out of this binary.
	ErrEngineUnavailable = errors.New("declare: expression engine unavailable")
	// ErrUnknownDriver indicates a binding naming an unregistered driver.
	ErrUnknownDriver = errors.New("declare: unknown driver")
	// ErrUnknownFormat indicates a record format other than json or yaml.
	ErrUnknownFormat = errors.New("declare: unknown format")
	// ErrUnknownMerge indicates an unsupported merge strategy.
	ErrUnknownMerge = errors.New("declare: unknown merge strategy")
	// ErrNamespaceConflict indicates a binding with both namespace and namespace_expr.
	ErrNamespaceConflict = errors.New("declare: namespace and namespace_expr are mutually exclusive")
	// ErrNamespaceType indicates an expression that did not produce a scalar.
	ErrNamespaceType = errors.New("declare: namespace expression must produce a string or number")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine  string
	Expr    string
	Binding string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("declare: %s evaluator %s binding=%s: %v", e.Engine, describeExpression(e.Expr), e.Binding, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "declare:") {
		return err
	}
	return fmt.Errorf("declare: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, binding string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Binding == "" {
			evalErr.Binding = binding
		}
		return evalErr
	}

	return &EvaluationError{
		Engine:  engine,
		Expr:    expr,
		Binding: binding,
		Err:     err,
	}
}
