package stac

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Operator is a query-extension comparison operator.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpLt Operator = "lt"
	OpLe Operator = "le"
	OpGt Operator = "gt"
	OpGe Operator = "ge"
)

var supportedOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
}

// Queryable value types.
const (
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeString  = "string"
	TypeBoolean = "boolean"
)

// Queryable is a property that may appear in a query-extension filter.
type Queryable struct {
	Type  string `json:"type" mapstructure:"type"`
	Title string `json:"title,omitempty" mapstructure:"title"`
}

// Queryables maps item property names to their declared type.
type Queryables map[string]Queryable

// DefaultQueryables is used when no queryables file is configured.
func DefaultQueryables() Queryables {
	return Queryables{
		"gsd":       {Type: TypeNumber, Title: "Ground Sample Distance"},
		"proj:epsg": {Type: TypeInteger, Title: "EPSG code"},
	}
}

// Validate checks every declared type is known.
func (q Queryables) Validate() error {
	for name, def := range q {
		switch def.Type {
		case TypeNumber, TypeInteger, TypeString, TypeBoolean:
		default:
			return fmt.Errorf("queryable %q: unknown type %q", name, def.Type)
		}
	}
	return nil
}

// Names returns the queryable names in sorted order.
func (q Queryables) Names() []string {
	names := make([]string, 0, len(q))
	for n := range q {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Filter is one validated attribute comparison. Field is the record path
// (properties.<name>); Value is normalized to float64, string or bool.
type Filter struct {
	Name  string
	Field string
	Op    Operator
	Type  string
	Value any
}

// ParseQuery validates a query-extension object against the allow-list and
// returns filters sorted by name and operator.
func ParseQuery(query map[string]map[string]any, allowed Queryables) ([]Filter, error) {
	var filters []Filter
	for name, expr := range query {
		def, ok := allowed[name]
		if !ok {
			return nil, &ParamError{Msg: fmt.Sprintf("Cannot search on field: %s", name)}
		}
		if len(expr) == 0 {
			return nil, paramErrorf("query", "no operators given for %s", name)
		}
		for op, raw := range expr {
			o := Operator(op)
			if !supportedOperators[o] {
				return nil, paramErrorf("query", "unsupported operator %q for %s", op, name)
			}
			v, err := coerce(def.Type, raw)
			if err != nil {
				return nil, paramErrorf("query", "%s %s: %v", name, op, err)
			}
			filters = append(filters, Filter{
				Name:  name,
				Field: "properties." + name,
				Op:    o,
				Type:  def.Type,
				Value: v,
			})
		}
	}
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Name != filters[j].Name {
			return filters[i].Name < filters[j].Name
		}
		return filters[i].Op < filters[j].Op
	})
	return filters, nil
}

func coerce(typ string, v any) (any, error) {
	switch typ {
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeInteger:
		if f, ok := toFloat(v); ok && f == math.Trunc(f) {
			return f, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %v", typ, v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Match reports whether value satisfies the filter. A missing or
// differently typed value never matches.
func (f Filter) Match(value any) bool {
	if value == nil {
		return false
	}
	c, ok := compare(value, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// compare orders a against b. The second result is false when the values
// are not comparable.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ba == bb {
			return 0, true
		}
		if !ba {
			return -1, true
		}
		return 1, true
	}
	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}
