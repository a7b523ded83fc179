// Package filter builds row-selection predicates over normalized tables.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/IshaanNene/homestalk/internal/normalize"
	"github.com/IshaanNene/homestalk/internal/types"
)

// Predicate selects rows of a table. Implementations must not modify the
// table. A predicate whose field is not in the table's schema selects every
// row.
type Predicate interface {
	Name() string
	Mask(t *types.Table) []bool
}

func allTrue(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

// --- Bounds ---

type bound struct {
	field string
	limit float64
	min   bool
}

// MinBound keeps rows whose field is >= limit.
func MinBound(field string, limit float64) Predicate {
	return &bound{field: field, limit: limit, min: true}
}

// MaxBound keeps rows whose field is <= limit.
func MaxBound(field string, limit float64) Predicate {
	return &bound{field: field, limit: limit}
}

func (b *bound) Name() string {
	op := "<="
	if b.min {
		op = ">="
	}
	return fmt.Sprintf("%s%s%g", b.field, op, b.limit)
}

func (b *bound) Mask(t *types.Table) []bool {
	if !t.HasColumn(b.field) {
		return allTrue(t.Len())
	}
	mask := make([]bool, t.Len())
	for i, r := range t.Rows {
		v, ok := r.Get(b.field).Float()
		if !ok {
			continue
		}
		if b.min {
			mask[i] = v >= b.limit
		} else {
			mask[i] = v <= b.limit
		}
	}
	return mask
}

// --- Set membership ---

type oneOf struct {
	field  string
	values map[string]bool
}

// OneOf keeps rows whose field exactly equals one of values after trimming
// surrounding whitespace.
func OneOf(field string, values ...string) Predicate {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = true
	}
	return &oneOf{field: field, values: set}
}

func (o *oneOf) Name() string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s in %v", o.field, keys)
}

func (o *oneOf) Mask(t *types.Table) []bool {
	if !t.HasColumn(o.field) {
		return allTrue(t.Len())
	}
	mask := make([]bool, t.Len())
	for i, r := range t.Rows {
		v := r.Get(o.field)
		if v.IsNull() {
			continue
		}
		mask[i] = o.values[strings.TrimSpace(v.Text())]
	}
	return mask
}

// --- Composition ---

type composite struct {
	preds []Predicate
}

// Composite combines predicates with logical AND. Order does not affect
// the result. With no predicates every row is selected.
func Composite(preds ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if c, ok := p.(*composite); ok {
			flat = append(flat, c.preds...)
			continue
		}
		flat = append(flat, p)
	}
	return &composite{preds: flat}
}

func (c *composite) Name() string {
	names := make([]string, len(c.preds))
	for i, p := range c.preds {
		names[i] = p.Name()
	}
	return strings.Join(names, " AND ")
}

func (c *composite) Mask(t *types.Table) []bool {
	mask := allTrue(t.Len())
	for _, p := range c.preds {
		m := p.Mask(t)
		for i := range mask {
			mask[i] = mask[i] && m[i]
		}
	}
	return mask
}

// Apply returns a new table holding the rows pred selects. A nil predicate
// selects everything. The input is not modified.
func Apply(t *types.Table, pred Predicate) *types.Table {
	if t == nil {
		return &types.Table{}
	}
	if pred == nil {
		return t.Select(allTrue(t.Len()))
	}
	return t.Select(pred.Mask(t))
}

// Criteria is the named set of optional bounds a query can filter on.
type Criteria struct {
	MinPrice      *float64 `mapstructure:"min_price"      yaml:"min_price,omitempty"`
	MaxPrice      *float64 `mapstructure:"max_price"      yaml:"max_price,omitempty"`
	MinBeds       *float64 `mapstructure:"min_beds"       yaml:"min_beds,omitempty"`
	MaxBeds       *float64 `mapstructure:"max_beds"       yaml:"max_beds,omitempty"`
	MinBaths      *float64 `mapstructure:"min_baths"      yaml:"min_baths,omitempty"`
	MinSqft       *float64 `mapstructure:"min_sqft"       yaml:"min_sqft,omitempty"`
	MaxSqft       *float64 `mapstructure:"max_sqft"       yaml:"max_sqft,omitempty"`
	MinYearBuilt  *float64 `mapstructure:"min_year_built" yaml:"min_year_built,omitempty"`
	MaxDOM        *float64 `mapstructure:"max_dom"        yaml:"max_dom,omitempty"`
	PropertyTypes []string `mapstructure:"property_types" yaml:"property_types,omitempty"`
}

// Empty reports whether no bound is set.
func (c Criteria) Empty() bool {
	return len(c.Predicates()) == 0
}

// Predicates returns one predicate per set bound.
func (c Criteria) Predicates() []Predicate {
	var preds []Predicate
	add := func(p *float64, mk func(string, float64) Predicate, field string) {
		if p != nil {
			preds = append(preds, mk(field, *p))
		}
	}
	add(c.MinPrice, MinBound, normalize.FieldPrice)
	add(c.MaxPrice, MaxBound, normalize.FieldPrice)
	add(c.MinBeds, MinBound, normalize.FieldBeds)
	add(c.MaxBeds, MaxBound, normalize.FieldBeds)
	add(c.MinBaths, MinBound, normalize.FieldBaths)
	add(c.MinSqft, MinBound, normalize.FieldSqft)
	add(c.MaxSqft, MaxBound, normalize.FieldSqft)
	add(c.MinYearBuilt, MinBound, normalize.FieldYearBuilt)
	add(c.MaxDOM, MaxBound, normalize.FieldDOM)
	if len(c.PropertyTypes) > 0 {
		preds = append(preds, OneOf(normalize.FieldPropertyType, c.PropertyTypes...))
	}
	return preds
}

// Predicate combines the criteria into one predicate, or nil when no bound
// is set.
func (c Criteria) Predicate() Predicate {
	preds := c.Predicates()
	if len(preds) == 0 {
		return nil
	}
	return Composite(preds...)
}
