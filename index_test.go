package collection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedIndex(t *testing.T) {
	table := NewTable("stock")
	require.NoError(t, table.CreateIndex(IndexSpec{Attribute: "v", Type: IndexOrdered}))

	values := []any{nil, false, true, -100, 0, int64(25), 25.0, 1.5, uint8(200), "", "a", "b"}
	for _, v := range values {
		require.NoError(t, table.Add(NewEvent(map[string]any{"v": v})))
	}
	// Events without the attribute are never indexed.
	require.NoError(t, table.Add(NewEvent(map[string]any{"other": 1})))

	tests := []struct {
		name     string
		op       Operator
		value    any
		expected []any
	}{
		{"== int matches ints and floats", OpEquals, 25, []any{int64(25), 25.0}},
		{"== float", OpEquals, 1.5, []any{1.5}},
		{"== string", OpEquals, "a", []any{"a"}},
		{"== empty string", OpEquals, "", []any{""}},
		{"== bool", OpEquals, true, []any{true}},
		{"== null", OpEquals, nil, []any{nil}},
		{"== missing", OpEquals, 999, []any{}},
		{"!= number includes other kinds", OpNotEquals, 25, []any{nil, false, true, -100, 0, 1.5, uint8(200), "", "a", "b"}},
		{"> number", OpGreater, 1.5, []any{int64(25), 25.0, uint8(200)}},
		{">= number", OpGreaterEquals, 25, []any{int64(25), 25.0, uint8(200)}},
		{"< number", OpLess, 1.5, []any{-100, 0}},
		{"<= number", OpLessEquals, 1.5, []any{-100, 0, 1.5}},
		{"> string", OpGreater, "", []any{"a", "b"}},
		{"<= string", OpLessEquals, "a", []any{"", "a"}},
		{"> bool", OpGreater, false, []any{true}},
		{"< bool", OpLess, true, []any{false}},
		{"> null matches nothing", OpGreater, nil, []any{}},
		{"<= null matches nothing", OpLessEquals, nil, []any{}},
		{"> below every number", OpGreater, math.Inf(-1), []any{-100, 0, int64(25), 25.0, 1.5, uint8(200)}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			set, err := table.FindEventSet("v", test.op, test.value)
			require.NoError(t, err)
			require.ElementsMatch(t, test.expected, attrs(set, "v"))
		})
	}

	t.Run("It rejects unindexable values", func(t *testing.T) {
		_, err := table.FindEventSet("v", OpEquals, []any{1})
		require.ErrorIs(t, err, ErrUnindexableValue)

		_, err = table.FindEventSet("v", OpEquals, math.NaN())
		require.ErrorIs(t, err, ErrUnindexableValue)
	})

	t.Run("It rejects unknown attributes", func(t *testing.T) {
		_, err := table.FindEventSet("nope", OpEquals, 1)
		require.ErrorIs(t, err, ErrUnknownAttribute)
	})
}

func TestHashIndex(t *testing.T) {
	table := NewTable("stock")
	require.NoError(t, table.CreateIndex(IndexSpec{Attribute: "symbol", Type: IndexHash}))

	for _, s := range []any{"IBM", "AAPL", "IBM", 1, 1.0, true, nil} {
		require.NoError(t, table.Add(NewEvent(map[string]any{"symbol": s})))
	}

	t.Run("It finds equal values", func(t *testing.T) {
		set, err := table.FindEventSet("symbol", OpEquals, "IBM")
		require.NoError(t, err)
		require.Equal(t, []any{"IBM", "IBM"}, attrs(set, "symbol"))

		set, err = table.FindEventSet("symbol", OpEquals, int64(1))
		require.NoError(t, err)
		require.Equal(t, []any{1, 1.0}, attrs(set, "symbol"))

		// "1" and 1 hash to different buckets, and never match.
		set, err = table.FindEventSet("symbol", OpEquals, "1")
		require.NoError(t, err)
		require.True(t, set.IsEmpty())
	})

	t.Run("It finds unequal values", func(t *testing.T) {
		set, err := table.FindEventSet("symbol", OpNotEquals, "IBM")
		require.NoError(t, err)
		require.Equal(t, []any{"AAPL", 1, 1.0, true, nil}, attrs(set, "symbol"))
	})

	t.Run("It rejects range operators", func(t *testing.T) {
		for _, op := range []Operator{OpLess, OpLessEquals, OpGreater, OpGreaterEquals} {
			_, err := table.FindEventSet("symbol", op, "IBM")
			require.ErrorIs(t, err, ErrUnsupportedOperator, op.String())
			require.False(t, table.SupportsOperator("symbol", op))
		}
		require.True(t, table.SupportsOperator("symbol", OpEquals))
		require.True(t, table.SupportsOperator("symbol", OpNotEquals))
	})
}

func TestNestedAttributeIndex(t *testing.T) {
	table := NewTable("stock")
	require.NoError(t, table.CreateIndex(IndexSpec{Attribute: "user.age", Type: IndexOrdered}))

	require.NoError(t, table.Add(
		NewEvent(map[string]any{"user": map[string]any{"age": 30}}),
		NewEvent(map[string]any{"user": map[string]any{"age": 10}}),
		NewEvent(map[string]any{"user": map[string]any{"name": "no age"}}),
	))

	set, err := table.FindEventSet("user.age", OpGreater, 18)
	require.NoError(t, err)
	require.Equal(t, []any{30}, attrs(set, "user.age"))

	t.Run("Flat keys containing dots aren't indexed", func(t *testing.T) {
		table := NewTable("stock")
		require.NoError(t, table.CreateIndex(IndexSpec{Attribute: "user.age", Type: IndexOrdered}))
		require.NoError(t, table.Add(
			NewEvent(map[string]any{"user.age": 30, "user": map[string]any{"age": 5}}),
			NewEvent(map[string]any{"user.age": 30}),
		))

		set, err := table.FindEventSet("user.age", OpEquals, 30)
		require.NoError(t, err)
		require.True(t, set.IsEmpty())

		set, err = table.FindEventSet("user.age", OpEquals, 5)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
		require.Equal(t, 30, set.Events()[0].Data["user.age"])

		set, err = table.FindEventSet("user.age", OpNotEquals, nil)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
	})
}

func TestIndexKey(t *testing.T) {
	t.Run("Numbers compare across types", func(t *testing.T) {
		a, err := newIndexKey(int32(7))
		require.NoError(t, err)
		b, err := newIndexKey(float32(7))
		require.NoError(t, err)
		require.Equal(t, 0, compareKeys(a, b))
		require.Equal(t, a.canonical(), b.canonical())
	})

	t.Run("Kinds are ordered", func(t *testing.T) {
		keys := []any{nil, false, -1, "a"}
		for i := 1; i < len(keys); i++ {
			a, _ := newIndexKey(keys[i-1])
			b, _ := newIndexKey(keys[i])
			require.Equal(t, -1, compareKeys(a, b))
		}
	})

	t.Run("Stored integers must be exact as floats", func(t *testing.T) {
		for _, v := range []any{1 << 53, int64(-(1 << 53)), uint(1 << 53), uint64(math.MaxUint64)} {
			_, err := newStoredKey(v)
			require.ErrorIs(t, err, ErrUnindexableValue, "%v", v)
		}
		for _, v := range []any{1<<53 - 1, int64(-(1<<53 - 1)), uint64(1<<53 - 1), float64(1 << 60)} {
			_, err := newStoredKey(v)
			require.NoError(t, err, "%v", v)
		}

		// Lookups accept any magnitude.
		require.True(t, indexable(int64(1<<53+1)))
		require.False(t, indexable(math.NaN()))
		require.False(t, indexable([]any{1}))
	})

	t.Run("Composite values are unindexable", func(t *testing.T) {
		for _, v := range []any{[]any{}, map[string]any{}, struct{}{}} {
			_, err := newIndexKey(v)
			require.ErrorIs(t, err, ErrUnindexableValue)
		}
	})
}
