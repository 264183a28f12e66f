package runtime

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/webhook"
)

// EvaluateCondition reports whether a single logic split condition holds.
// Unbound variables only satisfy not_exists. Unparsable numbers make the condition false.
func EvaluateCondition(c domain.LogicSplitCondition, vars webhook.Lookup) bool {
	val, bound := vars.Lookup(c.Variable)

	switch c.ValueType {
	case domain.ValueExistence:
		exists := bound && !IsEmpty(val)
		switch c.Operator {
		case domain.OpExists:
			return exists
		case domain.OpNotExists:
			return !exists
		}
		return false

	case domain.ValueNumber:
		if !bound {
			return false
		}
		left, ok := toNumber(val)
		if !ok {
			return false
		}
		right, ok := toNumber(c.Value)
		if !ok {
			return false
		}
		return compareNumbers(c.Operator, left, right)

	case domain.ValueString:
		if !bound {
			return false
		}
		return compareStrings(c.Operator, webhook.Stringify(val), c.Value)
	}
	return false
}

func compareNumbers(op domain.Operator, left, right float64) bool {
	switch op {
	case domain.OpGreaterThan:
		return left > right
	case domain.OpGreaterThanOrEqual:
		return left >= right
	case domain.OpLessThan:
		return left < right
	case domain.OpLessThanOrEqual:
		return left <= right
	case domain.OpEquals:
		return left == right
	case domain.OpNotEquals:
		return left != right
	}
	return false
}

// compareStrings is case-sensitive.
func compareStrings(op domain.Operator, left, right string) bool {
	switch op {
	case domain.OpEquals:
		return left == right
	case domain.OpNotEquals:
		return left != right
	case domain.OpContains:
		return strings.Contains(left, right)
	case domain.OpStartsWith:
		return strings.HasPrefix(left, right)
	case domain.OpEndsWith:
		return strings.HasSuffix(left, right)
	}
	return false
}

// toNumber converts v to a finite number. NaN and infinities count as unparsable.
func toNumber(v any) (float64, bool) {
	f, ok := rawNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
