package sqlite

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/pkg/apperror"
)

// Record is a loosely typed row: settable values on the way in, aggregate
// projections on the way out.
type Record = map[string]interface{}

type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "!="
	OpLt  Op = "<"
	OpGt  Op = ">"
	OpLte Op = "<="
	OpGte Op = ">="
)

// Cond is one "column op ?" clause. The value is always bound, never inlined.
type Cond struct {
	Column string
	Op     Op
	Value  interface{}
}

// Where is ANDed. Nil entries are skipped so optional filters can be written
// inline with If.
type Where []*Cond

func Eq(column string, value interface{}) *Cond { return &Cond{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value interface{}) *Cond {
	return &Cond{Column: column, Op: OpNeq, Value: value}
}
func Lt(column string, value interface{}) *Cond { return &Cond{Column: column, Op: OpLt, Value: value} }
func Gt(column string, value interface{}) *Cond { return &Cond{Column: column, Op: OpGt, Value: value} }
func Lte(column string, value interface{}) *Cond {
	return &Cond{Column: column, Op: OpLte, Value: value}
}
func Gte(column string, value interface{}) *Cond {
	return &Cond{Column: column, Op: OpGte, Value: value}
}

// If returns c when ok holds and nil otherwise.
func If(ok bool, c *Cond) *Cond {
	if !ok {
		return nil
	}
	return c
}

func (c *Cond) expression() (exp.Expression, error) {
	col := goqu.C(c.Column)
	switch c.Op {
	case OpEq:
		return col.Eq(c.Value), nil
	case OpNeq:
		return col.Neq(c.Value), nil
	case OpLt:
		return col.Lt(c.Value), nil
	case OpGt:
		return col.Gt(c.Value), nil
	case OpLte:
		return col.Lte(c.Value), nil
	case OpGte:
		return col.Gte(c.Value), nil
	default:
		return nil, apperror.Validation("unsupported operator %q on %s", c.Op, c.Column)
	}
}

func (w Where) expressions(t schema.Table) ([]exp.Expression, error) {
	exps := make([]exp.Expression, 0, len(w))
	for _, c := range w {
		if c == nil {
			continue
		}
		if !t.Has(c.Column) {
			return nil, apperror.Validation("unknown column %q in table %s", c.Column, t.Name)
		}
		e, err := c.expression()
		if err != nil {
			return nil, err
		}
		exps = append(exps, e)
	}
	return exps, nil
}

// Projection is a select-list entry: a declared column or a pre-formed
// expression such as "SUM(audio_axis) AS audio_sum".
type Projection struct {
	column string
	expr   string
	args   []interface{}
}

func Col(name string) Projection {
	return Projection{column: name}
}

// Expr takes raw SQL. Anything user supplied must go through args as "?".
func Expr(sql string, args ...interface{}) Projection {
	return Projection{expr: sql, args: args}
}

func (p Projection) selection(t schema.Table) (interface{}, error) {
	if p.column != "" {
		if !t.Has(p.column) {
			return nil, apperror.Validation("unknown column %q in table %s", p.column, t.Name)
		}
		return goqu.C(p.column), nil
	}
	if p.expr == "" {
		return nil, apperror.Validation("empty projection on table %s", t.Name)
	}
	return goqu.L(p.expr, p.args...), nil
}

type Order struct {
	Column string
	Desc   bool
}

func (o Order) expression(t schema.Table) (exp.OrderedExpression, error) {
	if !t.Has(o.Column) {
		return nil, apperror.Validation("unknown order column %q in table %s", o.Column, t.Name)
	}
	if o.Desc {
		return goqu.C(o.Column).Desc(), nil
	}
	return goqu.C(o.Column).Asc(), nil
}

type ListOptions struct {
	Where   Where
	OrderBy []Order
	Limit   uint
}

type ComputedOptions struct {
	Select  []Projection
	Where   Where
	GroupBy []string
	OrderBy []Order
	Limit   uint
}
