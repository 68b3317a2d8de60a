package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEventGet(t *testing.T) {
	e := NewEvent(map[string]any{
		"age":     25,
		"user.id": "flat",
		"user": map[string]any{
			"name": "ann",
			"address": map[string]any{
				"city": "london",
			},
		},
	})

	tests := []struct {
		path     string
		expected any
		ok       bool
	}{
		{path: "age", expected: 25, ok: true},
		{path: "user.name", expected: "ann", ok: true},
		{path: "user.address.city", expected: "london", ok: true},
		// Dotted paths are always nested, so flat keys containing dots are
		// only reachable through Data.
		{path: "user.id", ok: false},
		{path: "user.missing", ok: false},
		{path: "missing", ok: false},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			val, ok := e.Get(test.path)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.expected, val)
		})
	}

	t.Run("nil events hold nothing", func(t *testing.T) {
		var e *Event
		_, ok := e.Get("age")
		require.False(t, ok)
	})
}

func TestEventFromStruct(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"symbol": "IBM",
		"price":  101.5,
		"volume": 300,
	})
	require.NoError(t, err)

	e := EventFromStruct(s)
	require.Equal(t, "IBM", e.Data["symbol"])
	require.Equal(t, 101.5, e.Data["price"])
	// Struct numbers are always doubles.
	require.Equal(t, float64(300), e.Data["volume"])
	require.False(t, e.Stored())

	require.NotNil(t, EventFromStruct(nil).Data)
}

func TestDeepCloner(t *testing.T) {
	table := NewTable("stock")
	orig := NewEvent(map[string]any{
		"tags": []any{"a", "b"},
		"user": map[string]any{"name": "ann"},
	})
	require.NoError(t, table.Add(orig))

	clone := DeepCloner.Copy(orig)
	require.Equal(t, orig.ID, clone.ID)
	require.Equal(t, orig.Data, clone.Data)
	require.False(t, clone.Stored())

	clone.Data["user"].(map[string]any)["name"] = "bob"
	clone.Data["tags"].([]any)[0] = "z"
	clone.Data["new"] = true

	require.Equal(t, "ann", orig.Data["user"].(map[string]any)["name"])
	require.Equal(t, "a", orig.Data["tags"].([]any)[0])
	require.NotContains(t, orig.Data, "new")
}

func TestMatchingEvent(t *testing.T) {
	trade := NewEvent(map[string]any{"price": 10})
	quote := NewEvent(map[string]any{"bid": 9})

	m := NewMatchingEvent("trade", trade)
	joined := m.With("quote", quote)

	_, ok := m.Stream("quote")
	require.False(t, ok, "With must not modify the receiver")

	got, ok := joined.Stream("quote")
	require.True(t, ok)
	require.Same(t, quote, got)

	act := joined.withVars(map[string]any{"a": "x"}).activation()
	require.Equal(t, trade.Data, act["trade"])
	require.Equal(t, quote.Data, act["quote"])
	require.Equal(t, map[string]any{"a": "x"}, act[VarRoot])
}
