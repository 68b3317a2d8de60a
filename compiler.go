package collection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/karlseguin/ccache/v2"
)

const (
	defaultCacheSize = 1_000
	defaultCacheTTL  = time.Hour
)

type CompilerOption func(c *Compiler)

// WithCacheSize sets the maximum number of compiled conditions to cache.
func WithCacheSize(n int64) CompilerOption {
	return func(c *Compiler) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

func WithCacheTTL(ttl time.Duration) CompilerOption {
	return func(c *Compiler) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func WithLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLiteralLifting lifts quoted string literals out of conditions before
// compiling, so that conditions differing only by literals share a cached
// compilation.  Lifted literals are bound to the "vars" variable, which must
// not be declared within the compiler's environment.
func WithLiteralLifting() CompilerOption {
	return func(c *Compiler) {
		c.lift = true
	}
}

// Compiler compiles conditions into executor trees for a holder, caching the
// result.
type Compiler struct {
	env   *cel.Env
	cache *ccache.Cache
	log   *slog.Logger

	cacheSize int64
	cacheTTL  time.Duration
	lift      bool

	hits   int64
	misses int64
}

// NewCompiler creates a compiler for conditions within env.  The env must
// declare the table reference and every stream reference used within
// conditions.
func NewCompiler(env *cel.Env, opts ...CompilerOption) (*Compiler, error) {
	c := &Compiler{
		env:       env,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}

	// Macro calls are tracked so that subexpressions using macros, eg.
	// `stock.tags.exists(t, t == "a")`, can be unparsed into evaluators.
	ext := []cel.EnvOption{cel.EnableMacroCallTracking()}
	if c.lift {
		ext = append(ext, cel.Variable(VarRoot, cel.MapType(cel.StringType, cel.DynType)))
	}
	extended, err := env.Extend(ext...)
	if err != nil {
		return nil, fmt.Errorf("error extending environment: %w", err)
	}
	c.env = extended

	c.cache = ccache.New(ccache.Configure().MaxSize(c.cacheSize))
	return c, nil
}

func (c *Compiler) Hits() int64 {
	return atomic.LoadInt64(&c.hits)
}

func (c *Compiler) Misses() int64 {
	return atomic.LoadInt64(&c.misses)
}

// Stop stops the cache's background worker.
func (c *Compiler) Stop() {
	c.cache.Stop()
}

type compiled struct {
	expr CollectionExpression
	exec CollectionExecutor
}

// Compile compiles a boolean condition against the holder, where tableRef is
// the identifier referring to stored events within the condition.
func (c *Compiler) Compile(ctx context.Context, tableRef, condition string, holder IndexedEventHolder) (*CompiledCondition, error) {
	cond, args := condition, LiftedArgs(offsetArgs{})
	if c.lift {
		cond, args = liftLiterals(condition)
	}

	key, cacheable := cacheKey(tableRef, cond, holder)
	if cacheable {
		if item := c.cache.Get(key); item != nil && !item.Expired() {
			atomic.AddInt64(&c.hits, 1)
			return newCompiledCondition(item.Value().(compiled), holder, args), nil
		}
	}
	atomic.AddInt64(&c.misses, 1)

	comp, err := c.compile(tableRef, cond, holder)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cache.Set(key, comp, c.cacheTTL)
	}

	c.log.DebugContext(ctx, "compiled condition",
		"table", tableRef,
		"condition", cond,
		"strategy", strategyFor(comp.expr).String(),
		"plan", Explain(comp.expr),
	)
	return newCompiledCondition(comp, holder, args), nil
}

func (c *Compiler) compile(tableRef, cond string, holder IndexedEventHolder) (compiled, error) {
	ast, issues := c.env.Compile(cond)
	if issues != nil && issues.Err() != nil {
		return compiled{}, fmt.Errorf("error compiling condition: %w", issues.Err())
	}
	if err := checkBoolean(ast); err != nil {
		return compiled{}, fmt.Errorf("condition %q: %w", cond, err)
	}

	expr, err := newAnalyzer(tableRef, holder).Analyze(ast.NativeRep())
	if err != nil {
		return compiled{}, err
	}
	exec, err := builder{env: c.env, tableRef: tableRef}.build(expr)
	if err != nil {
		return compiled{}, err
	}
	return compiled{expr: expr, exec: exec}, nil
}

// cacheKey returns the cache key for a condition.  Compilations depend on the
// holder's indexes, so only holders which report their indexes are cached.
func cacheKey(tableRef, cond string, holder IndexedEventHolder) (string, bool) {
	sig, ok := holder.(interface{ IndexSignature() string })
	if !ok {
		return "", false
	}
	return tableRef + "\x00" + sig.IndexSignature() + "\x00" + cond, true
}

// CompiledCondition is a condition bound to a holder.  It's safe for
// concurrent use.
type CompiledCondition struct {
	expr     CollectionExpression
	exec     CollectionExecutor
	holder   IndexedEventHolder
	vars     map[string]any
	strategy Strategy
}

func newCompiledCondition(comp compiled, holder IndexedEventHolder, args LiftedArgs) *CompiledCondition {
	return &CompiledCondition{
		expr:     comp.expr,
		exec:     comp.exec,
		holder:   holder,
		vars:     args.Map(),
		strategy: strategyFor(comp.expr),
	}
}

func (c *CompiledCondition) Expression() CollectionExpression {
	return c.expr
}

func (c *CompiledCondition) Executor() CollectionExecutor {
	return c.exec
}

func (c *CompiledCondition) Strategy() Strategy {
	return c.strategy
}

func (c *CompiledCondition) Find(ctx context.Context, m MatchingEvent, cloner EventCloner) (*Event, bool, error) {
	return c.exec.Find(ctx, m.withVars(c.vars), c.holder, cloner)
}

func (c *CompiledCondition) FindEventSet(ctx context.Context, m MatchingEvent) (*EventSet, error) {
	return c.exec.FindEventSet(ctx, m.withVars(c.vars), c.holder)
}

func (c *CompiledCondition) Contains(ctx context.Context, m MatchingEvent) (bool, error) {
	return c.exec.Contains(ctx, m.withVars(c.vars), c.holder)
}

func (c *CompiledCondition) Delete(ctx context.Context, m MatchingEvent) error {
	return c.exec.Delete(ctx, m.withVars(c.vars), c.holder)
}
