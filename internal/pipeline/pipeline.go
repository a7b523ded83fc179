package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/normalize"
	"github.com/IshaanNene/homestalk/internal/types"
)

// Middleware processes one record and returns the (possibly modified)
// record. Return nil to drop the row.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec types.Record) (types.Record, error)
}

// Chain runs row middleware over a table before the filter predicate.
type Chain struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// NewChain creates an empty chain.
func NewChain(logger *slog.Logger) *Chain {
	return &Chain{
		logger: logger.With("component", "row_chain"),
	}
}

// ChainFromConfig builds the row middleware enabled in cfg. It returns nil
// when none is, so rows reach the predicate untouched.
func ChainFromConfig(cfg config.RowsConfig, logger *slog.Logger) *Chain {
	if !cfg.DedupURL && len(cfg.RequiredFields) == 0 {
		return nil
	}
	c := NewChain(logger)
	if len(cfg.RequiredFields) > 0 {
		c.Use(&RequiredFieldsMiddleware{Fields: cfg.RequiredFields})
	}
	if cfg.DedupURL {
		c.Use(NewDedupMiddleware(normalize.FieldURL))
	}
	return c
}

// Use adds a middleware to the chain.
func (c *Chain) Use(mw Middleware) {
	c.middlewares = append(c.middlewares, mw)
	c.logger.Debug("middleware added", "name", mw.Name(), "position", len(c.middlewares))
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.middlewares)
}

// Reset clears per-run state held by stateful middleware.
func (c *Chain) Reset() {
	if c == nil {
		return
	}
	for _, mw := range c.middlewares {
		if r, ok := mw.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
}

// Process returns a new table holding the rows that survived every
// middleware. The input table is not modified.
func (c *Chain) Process(t *types.Table) (*types.Table, error) {
	out := &types.Table{Columns: append([]string(nil), t.Columns...)}
	if c.Len() == 0 {
		for _, r := range t.Rows {
			out.Rows = append(out.Rows, r.Clone())
		}
		return out, nil
	}

rows:
	for i, r := range t.Rows {
		current := r.Clone()
		for _, mw := range c.middlewares {
			result, err := mw.Process(current)
			if err != nil {
				return nil, fmt.Errorf("middleware %s, row %d: %w", mw.Name(), i, err)
			}
			if result == nil {
				c.logger.Debug("row dropped", "stage", mw.Name(), "row", i)
				continue rows
			}
			current = result
		}
		out.Rows = append(out.Rows, current)
	}
	return out, nil
}

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops rows missing any of the given fields.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec types.Record) (types.Record, error) {
	for _, field := range m.Fields {
		v := rec.Get(field)
		if v.IsNull() || v.Text() == "" {
			return nil, nil
		}
	}
	return rec, nil
}

// DedupMiddleware drops rows whose key field repeats an earlier row.
// Rows with an empty key always pass.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  string
}

func NewDedupMiddleware(key string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		key:  key,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec types.Record) (types.Record, error) {
	val := rec.Get(m.key).Text()
	if val == "" {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[val]; exists {
		return nil, nil
	}
	m.seen[val] = struct{}{}
	return rec, nil
}

// Reset forgets every key seen so far.
func (m *DedupMiddleware) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]struct{})
}
