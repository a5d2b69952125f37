// Package condition evaluates trigger conditions against event payloads.
//
// Evaluation never fails: a missing field, or a value that cannot be coerced
// to the type an operator needs, makes the condition false.
package condition

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/djlord-it/bizflow/internal/domain"
)

// Evaluate reports whether every condition holds for payload.
// An empty condition list always matches.
func Evaluate(conds []domain.Condition, payload map[string]any) bool {
	for _, c := range conds {
		if !Match(c, payload) {
			return false
		}
	}
	return true
}

// Match evaluates a single condition.
func Match(c domain.Condition, payload map[string]any) bool {
	actual, ok := payload[c.Field]
	if !ok {
		return false
	}

	switch c.Op {
	case domain.OpEq:
		return equal(actual, c.Value)
	case domain.OpGt:
		a, b := toNumber(actual), toNumber(c.Value)
		return a > b // false when either side is NaN
	case domain.OpLt:
		a, b := toNumber(actual), toNumber(c.Value)
		return a < b
	default:
		return false
	}
}

// equal is strict equality over scalar JSON values. Numbers compare by value
// regardless of their Go representation; a number never equals a string.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// numeric returns the value of a Go or JSON number.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toNumber coerces v for ordered comparison, returning NaN when it cannot.
// Booleans are not numbers.
func toNumber(v any) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// Suffixes of the legacy condition map.
const (
	suffixGt = "_gt"
	suffixLt = "_lt"
)

// FromLegacy converts a field -> value map using the "_gt"/"_lt" suffix
// convention into explicit conditions, sorted by field for stable output.
func FromLegacy(m map[string]any) []domain.Condition {
	if len(m) == 0 {
		return nil
	}
	conds := make([]domain.Condition, 0, len(m))
	for key, value := range m {
		c := domain.Condition{Field: key, Op: domain.OpEq, Value: value}
		switch {
		case strings.HasSuffix(key, suffixGt) && len(key) > len(suffixGt):
			c.Field = strings.TrimSuffix(key, suffixGt)
			c.Op = domain.OpGt
		case strings.HasSuffix(key, suffixLt) && len(key) > len(suffixLt):
			c.Field = strings.TrimSuffix(key, suffixLt)
			c.Op = domain.OpLt
		}
		conds = append(conds, c)
	}
	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return conds[i].Op < conds[j].Op
	})
	return conds
}

// Validate checks that every condition names a field and a known operator.
func Validate(conds []domain.Condition) error {
	for i, c := range conds {
		if strings.TrimSpace(c.Field) == "" {
			return &InvalidError{Index: i, Reason: "field is required"}
		}
		if !c.Op.Valid() {
			return &InvalidError{Index: i, Reason: "unknown operator " + strconv.Quote(string(c.Op))}
		}
	}
	return nil
}

// InvalidError describes a malformed condition.
type InvalidError struct {
	Index  int
	Reason string
}

func (e *InvalidError) Error() string {
	return "condition " + strconv.Itoa(e.Index) + ": " + e.Reason
}

// Parse decodes conditions from JSON. It accepts either an array of
// {field, op, value} objects or a legacy suffix map. null and empty input
// yield no conditions.
func Parse(raw []byte) ([]domain.Condition, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return FromLegacy(m), nil
	}
	var conds []domain.Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, err
	}
	return conds, nil
}
