package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newIndexedTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable("stock")
	require.NoError(t, table.CreateIndex(
		IndexSpec{Attribute: "age", Type: IndexOrdered},
		IndexSpec{Attribute: "name", Type: IndexHash},
	))
	return table
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()
	c, err := NewCompiler(newEnv(t))
	require.NoError(t, err)
	defer c.Stop()

	table := newIndexedTable(t)

	tests := []struct {
		condition string
		strategy  Strategy
		explain   string
	}{
		{
			condition: `stock.age > 20`,
			strategy:  StrategyIndexed,
			explain:   `compare[indexed_result_set](age > 20)`,
		},
		{
			condition: `20 < stock.age`,
			strategy:  StrategyIndexed,
			explain:   `compare[indexed_result_set](age > 20)`,
		},
		{
			condition: `stock.age >= trade.min`,
			strategy:  StrategyIndexed,
			explain:   `compare[indexed_result_set](age >= trade.min)`,
		},
		{
			condition: `stock.name == "IBM"`,
			strategy:  StrategyIndexed,
			explain:   `compare[indexed_result_set](name == "IBM")`,
		},
		{
			condition: `trade.ok`,
			strategy:  StrategyGate,
			explain:   `none(trade.ok)`,
		},
		{
			condition: `trade.price > 10`,
			strategy:  StrategyGate,
			explain:   `none(trade.price > 10)`,
		},
		{
			condition: `!trade.ok`,
			strategy:  StrategyGate,
		},
		{
			// Unindexed attribute.
			condition: `stock.score > 10`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.score > 10)`,
		},
		{
			// Self reference.
			condition: `stock.age > stock.limit`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.age > stock.limit)`,
		},
		{
			// Hash indexes can't answer ranges.
			condition: `stock.name < "m"`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.name < "m")`,
		},
		{
			condition: `stock.age`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.age)`,
		},
		{
			condition: `has(stock.age)`,
			strategy:  StrategyScan,
			explain:   `exhaustive(has(stock.age))`,
		},
		{
			condition: `stock["age"] > 20`,
			strategy:  StrategyScan,
		},
		{
			condition: `stock.tags.exists(t, t == trade.tag)`,
			strategy:  StrategyScan,
		},
		{
			condition: `stock.age > 20 && trade.ok`,
			strategy:  StrategyIndexed,
			explain:   `and[indexed_result_set](compare[indexed_result_set](age > 20), none(trade.ok))`,
		},
		{
			condition: `stock.age > 20 && stock.score > 1`,
			strategy:  StrategyIndexed,
			explain:   `and[indexed_result_set](compare[indexed_result_set](age > 20), exhaustive(stock.score > 1))`,
		},
		{
			condition: `stock.age > 20 || stock.name == "IBM"`,
			strategy:  StrategyIndexed,
			explain:   `or[indexed_result_set](compare[indexed_result_set](age > 20), compare[indexed_result_set](name == "IBM"))`,
		},
		{
			condition: `stock.age > 20 || stock.score > 1`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.age > 20 || stock.score > 1)`,
		},
		{
			condition: `stock.age > 20 || trade.ok`,
			strategy:  StrategyScan,
			explain:   `exhaustive(stock.age > 20 || trade.ok)`,
		},
		{
			condition: `!(stock.age > 20)`,
			strategy:  StrategyIndexed,
			explain:   `compare[indexed_result_set](age <= 20)`,
		},
		{
			condition: `!(stock.age > 20 && stock.name == "IBM")`,
			strategy:  StrategyIndexed,
			explain:   `or[indexed_result_set](compare[indexed_result_set](age <= 20), compare[indexed_result_set](name != "IBM"))`,
		},
		{
			condition: `!(stock.age > 20 && stock.score > 1)`,
			strategy:  StrategyScan,
			explain:   `exhaustive(!(stock.age > 20 && stock.score > 1))`,
		},
		{
			condition: `!(stock.age > 20 || stock.score > 1)`,
			strategy:  StrategyScan,
		},
		{
			condition: `stock.age in [17, 40]`,
			strategy:  StrategyIndexed,
			explain:   `in[indexed_result_set](age in [17, 40])`,
		},
		{
			condition: `!(stock.age in [17, 40])`,
			strategy:  StrategyIndexed,
			explain:   `not[indexed_result_set](in[indexed_result_set](age in [17, 40]))`,
		},
		{
			condition: `stock.age in trade.ages && stock.name == trade.symbol`,
			strategy:  StrategyIndexed,
			explain:   `and[indexed_result_set](in[indexed_result_set](age in trade.ages), compare[indexed_result_set](name == trade.symbol))`,
		},
	}

	for _, test := range tests {
		t.Run(test.condition, func(t *testing.T) {
			cond, err := c.Compile(ctx, "stock", test.condition, table)
			require.NoError(t, err)
			require.Equal(t, test.strategy, cond.Strategy(), Explain(cond.Expression()))
			if test.explain != "" {
				require.Equal(t, test.explain, Explain(cond.Expression()))
			}
		})
	}
}

func TestAnalyzeErrors(t *testing.T) {
	ctx := context.Background()
	c, err := NewCompiler(newEnv(t))
	require.NoError(t, err)
	defer c.Stop()

	table := newIndexedTable(t)

	t.Run("Non-boolean conditions", func(t *testing.T) {
		_, err := c.Compile(ctx, "stock", `"abc"`, table)
		require.ErrorIs(t, err, ErrNotBoolean)

		_, err = c.Compile(ctx, "stock", `1 + 1`, table)
		require.ErrorIs(t, err, ErrNotBoolean)
	})

	t.Run("Invalid conditions", func(t *testing.T) {
		_, err := c.Compile(ctx, "stock", `stock.age >`, table)
		require.Error(t, err)

		_, err = c.Compile(ctx, "stock", `unknown.age > 1`, table)
		require.Error(t, err)
	})
}
