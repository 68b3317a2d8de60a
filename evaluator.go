package collection

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var ErrNotBoolean = errors.New("expression is not boolean")

// ValueEvaluator computes a scalar value from the matching event, eg. the
// right hand side of `table.age > trade.minAge`.
type ValueEvaluator interface {
	Evaluate(ctx context.Context, m MatchingEvent) (any, error)
	Source() string
}

// BoolEvaluator computes a boolean from the matching event.  BoolEvaluators
// can only be created from expressions that type-check as bool or dyn.
type BoolEvaluator interface {
	EvaluateBool(ctx context.Context, m MatchingEvent) (bool, error)
	Source() string
}

// RowEvaluator evaluates a condition for a single stored event, binding the
// table reference to the stored event's data.
type RowEvaluator interface {
	EvaluateRow(ctx context.Context, m MatchingEvent, stored *Event) (bool, error)
	Source() string
}

type celEvaluator struct {
	src      string
	prg      cel.Program
	tableRef string
}

func (c *celEvaluator) Source() string {
	return c.src
}

func compileProgram(env *cel.Env, src string) (*cel.Ast, cel.Program, error) {
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("error compiling %q: %w", src, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating program for %q: %w", src, err)
	}
	return ast, prg, nil
}

func NewValueEvaluator(env *cel.Env, src string) (ValueEvaluator, error) {
	_, prg, err := compileProgram(env, src)
	if err != nil {
		return nil, err
	}
	return &celEvaluator{src: src, prg: prg}, nil
}

func NewBoolEvaluator(env *cel.Env, src string) (BoolEvaluator, error) {
	ast, prg, err := compileProgram(env, src)
	if err != nil {
		return nil, err
	}
	if err := checkBoolean(ast); err != nil {
		return nil, fmt.Errorf("%q: %w", src, err)
	}
	return &celEvaluator{src: src, prg: prg}, nil
}

func NewRowEvaluator(env *cel.Env, tableRef, src string) (RowEvaluator, error) {
	ast, prg, err := compileProgram(env, src)
	if err != nil {
		return nil, err
	}
	if err := checkBoolean(ast); err != nil {
		return nil, fmt.Errorf("%q: %w", src, err)
	}
	return &celEvaluator{src: src, prg: prg, tableRef: tableRef}, nil
}

// checkBoolean ensures that an expression's static type may be boolean.  Dyn
// expressions are checked again when evaluated.
func checkBoolean(ast *cel.Ast) error {
	t := ast.OutputType()
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case types.BoolKind, types.DynKind, types.AnyKind:
		return nil
	default:
		return fmt.Errorf("%w: output type is %s", ErrNotBoolean, t.String())
	}
}

func (c *celEvaluator) Evaluate(ctx context.Context, m MatchingEvent) (any, error) {
	val, _, err := c.prg.ContextEval(ctx, m.activation())
	if err != nil {
		return nil, fmt.Errorf("error evaluating %q: %w", c.src, err)
	}
	return nativeValue(val)
}

func (c *celEvaluator) EvaluateBool(ctx context.Context, m MatchingEvent) (bool, error) {
	val, _, err := c.prg.ContextEval(ctx, m.activation())
	if err != nil {
		return false, fmt.Errorf("error evaluating %q: %w", c.src, err)
	}
	return asBool(c.src, val)
}

// EvaluateRow returns false when evaluation errors, eg. when the stored event
// doesn't contain a referenced attribute.  Indexes never hold such events, so
// scans and index lookups agree.
func (c *celEvaluator) EvaluateRow(ctx context.Context, m MatchingEvent, stored *Event) (bool, error) {
	val, _, err := c.prg.ContextEval(ctx, m.rowActivation(c.tableRef, stored))
	if err != nil {
		return false, nil
	}
	return asBool(c.src, val)
}

func asBool(src string, val ref.Val) (bool, error) {
	b, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %s", ErrNotBoolean, src, val.Type().TypeName())
	}
	return bool(b), nil
}

// nativeValue converts CEL values into the go values that indexes accept.
func nativeValue(val ref.Val) (any, error) {
	switch v := val.(type) {
	case types.Null:
		return nil, nil
	case traits.Lister:
		return v.ConvertToNative(reflect.TypeOf([]any{}))
	case traits.Mapper:
		return v.ConvertToNative(reflect.TypeOf(map[string]any{}))
	default:
		return val.Value(), nil
	}
}
