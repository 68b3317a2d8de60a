package collection

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *cel.Env {
	t.Helper()
	env, err := cel.NewEnv(
		cel.Variable("stock", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("trade", cel.MapType(cel.StringType, cel.DynType)),
	)
	require.NoError(t, err)
	return env
}

// newAgeTable returns a table holding {"age": n} for every age, indexed on
// age.
func newAgeTable(t *testing.T, ages ...any) *Table {
	t.Helper()
	table := NewTable("stock")
	require.NoError(t, table.CreateIndex(IndexSpec{Attribute: "age", Type: IndexOrdered}))
	for _, age := range ages {
		require.NoError(t, table.Add(NewEvent(map[string]any{"age": age})))
	}
	return table
}

// attrs returns the attribute of every event within the set, in order.
func attrs(set *EventSet, attr string) []any {
	out := []any{}
	set.Each(func(e *Event) bool {
		val, _ := e.Get(attr)
		out = append(out, val)
		return true
	})
	return out
}

func ids(set *EventSet) []string {
	out := []string{}
	set.Each(func(e *Event) bool {
		out = append(out, e.ID.String())
		return true
	})
	return out
}

func value(t *testing.T, env *cel.Env, src string) ValueEvaluator {
	t.Helper()
	v, err := NewValueEvaluator(env, src)
	require.NoError(t, err)
	return v
}

func gate(t *testing.T, env *cel.Env, src string) *NonCollectionExecutor {
	t.Helper()
	g, err := NewBoolEvaluator(env, src)
	require.NoError(t, err)
	return NewNonCollectionExecutor(g)
}

func scan(t *testing.T, env *cel.Env, src string) *ExhaustiveCollectionExecutor {
	t.Helper()
	row, err := NewRowEvaluator(env, "stock", src)
	require.NoError(t, err)
	return NewExhaustiveCollectionExecutor(row)
}
