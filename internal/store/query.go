package store

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Predicate is the query value produced by the Q constructor surfaced to
// payloads. It matches inventory items field by field; the payload never
// sees SQL.
type Predicate struct {
	Field string
	Op    string
	Value interface{}
}

// Q builds a query predicate. Supported fields: id, name, description,
// stock, unit_price. Supported operators: ==, !=, contains, >, >=, <, <=.
func Q(field, op string, value interface{}) Predicate {
	return Predicate{Field: strings.ToLower(strings.TrimSpace(field)), Op: op, Value: value}
}

// Match reports whether the item satisfies the predicate. Unknown fields or
// operators match nothing.
func (p Predicate) Match(it Item) bool {
	switch p.Field {
	case "id":
		return matchString(it.ID, p.Op, p.Value)
	case "name":
		return matchString(it.Name, p.Op, p.Value)
	case "description":
		return matchString(it.Description, p.Op, p.Value)
	case "stock":
		want, ok := toFloat(p.Value)
		if !ok {
			return false
		}
		return matchNumber(float64(it.Stock), p.Op, want)
	case "unit_price":
		want, ok := toDecimal(p.Value)
		if !ok {
			return false
		}
		return matchDecimal(it.UnitPrice, p.Op, want)
	default:
		return false
	}
}

func matchString(have, op string, value interface{}) bool {
	want, ok := value.(string)
	if !ok {
		return false
	}
	switch op {
	case "==":
		return have == want
	case "!=":
		return have != want
	case "contains":
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	default:
		return false
	}
}

func matchNumber(have float64, op string, want float64) bool {
	switch op {
	case "==":
		return have == want
	case "!=":
		return have != want
	case ">":
		return have > want
	case ">=":
		return have >= want
	case "<":
		return have < want
	case "<=":
		return have <= want
	default:
		return false
	}
}

func matchDecimal(have decimal.Decimal, op string, want decimal.Decimal) bool {
	cmp := have.Cmp(want)
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

// toFloat coerces the loose value types a payload or a JSON plan can carry.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	}
}
