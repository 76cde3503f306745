// internal/segment/evaluator.go
//
// Compiles a declarative segment definition into a predicate tree over
// the fixed field registry. Unknown fields and unsupported
// operator/field combinations are rejected at compile time, never
// silently matched against nothing.
package segment

import (
	"strconv"
	"strings"
	"time"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/model"
)

type predicate func(c *model.Customer, now time.Time) bool

// Compiled is a segment definition resolved against the field registry
// and ready to evaluate over a population.
type Compiled struct {
	def   model.SegmentDefinition
	preds []predicate
}

// Compile resolves every condition of def. campaignID only labels the
// ConfigurationError.
func Compile(campaignID int, def model.SegmentDefinition) (*Compiled, error) {
	if err := def.Validate(); err != nil {
		return nil, appErrors.NewConfiguration(campaignID, "invalid segment: %v", err)
	}
	preds := make([]predicate, 0, len(def.Conditions))
	for _, cond := range def.Conditions {
		acc, ok := fieldRegistry[cond.Field]
		if !ok {
			return nil, appErrors.NewConfiguration(campaignID, "unknown segment field %q", cond.Field)
		}
		p, err := compileCondition(acc, cond)
		if err != nil {
			return nil, appErrors.NewConfiguration(campaignID, "condition on %q: %v", cond.Field, err)
		}
		preds = append(preds, p)
	}
	return &Compiled{def: def, preds: preds}, nil
}

// Matches applies the AND/OR condition logic only; exclusions are
// applied by Filter afterwards. No conditions means everyone matches.
func (s *Compiled) Matches(c *model.Customer, now time.Time) bool {
	if len(s.preds) == 0 {
		return true
	}
	if s.def.Logic == model.LogicOr {
		for _, p := range s.preds {
			if p(c, now) {
				return true
			}
		}
		return false
	}
	for _, p := range s.preds {
		if !p(c, now) {
			return false
		}
	}
	return true
}

// Filter resolves the audience for one campaign. lastContact maps
// customer ID to the most recent outbound message time across all
// campaigns, for the recently-contacted exclusion.
func (s *Compiled) Filter(pop []model.Customer, lastContact map[int]time.Time, now time.Time) []model.Customer {
	var out []model.Customer
	for i := range pop {
		c := &pop[i]
		if !s.Matches(c, now) {
			continue
		}
		if s.def.ExcludeMarketingOptOut {
			if ch := s.def.RequireChannel; ch != "" {
				if c.OptedOutOf(ch) {
					continue
				}
			} else if c.MarketingOptOut {
				continue
			}
		}
		if d := s.def.ExcludeRecentlyContactedDays; d > 0 {
			if t, ok := lastContact[c.ID]; ok && now.Sub(t) < time.Duration(d)*24*time.Hour {
				continue
			}
		}
		if ch := s.def.RequireChannel; ch != "" && !c.Reachable(ch) {
			continue
		}
		out = append(out, pop[i])
	}
	return out
}

// ====================== condition compilation ======================

func compileCondition(acc accessor, cond model.SegmentCondition) (predicate, error) {
	// Null checks behave the same for every field kind.
	switch cond.Operator {
	case model.OpIsNull:
		return func(c *model.Customer, now time.Time) bool {
			_, ok := acc.get(c, now)
			return !ok
		}, nil
	case model.OpIsNotNull:
		return func(c *model.Customer, now time.Time) bool {
			_, ok := acc.get(c, now)
			return ok
		}, nil
	}

	switch acc.kind {
	case kindString:
		return compileString(acc, cond)
	case kindNumber:
		return compileNumber(acc, cond)
	case kindTime:
		return compileTime(acc, cond)
	case kindBool:
		return compileBool(acc, cond)
	}
	return nil, errUnsupported(cond.Operator)
}

type unsupportedOpError struct{ op model.Operator }

func (e unsupportedOpError) Error() string {
	return "operator " + string(e.op) + " not supported for this field"
}

func errUnsupported(op model.Operator) error { return unsupportedOpError{op: op} }

func compileString(acc accessor, cond model.SegmentCondition) (predicate, error) {
	get := func(c *model.Customer, now time.Time) (string, bool) {
		v, ok := acc.get(c, now)
		if !ok {
			return "", false
		}
		return v.(string), true
	}
	switch cond.Operator {
	case model.OpEq, model.OpNeq:
		want, ok := asString(cond.Value)
		if !ok {
			return nil, errBadValue(cond.Value)
		}
		neq := cond.Operator == model.OpNeq
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && (v == want) != neq
		}, nil
	case model.OpContains:
		want, ok := asString(cond.Value)
		if !ok {
			return nil, errBadValue(cond.Value)
		}
		want = strings.ToLower(want)
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && strings.Contains(strings.ToLower(v), want)
		}, nil
	case model.OpIn, model.OpNotIn:
		set, err := stringSet(cond.Value)
		if err != nil {
			return nil, err
		}
		notIn := cond.Operator == model.OpNotIn
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			if !ok {
				return notIn
			}
			_, in := set[v]
			return in != notIn
		}, nil
	}
	return nil, errUnsupported(cond.Operator)
}

func compileNumber(acc accessor, cond model.SegmentCondition) (predicate, error) {
	get := func(c *model.Customer, now time.Time) (float64, bool) {
		v, ok := acc.get(c, now)
		if !ok {
			return 0, false
		}
		return v.(float64), true
	}
	cmp := func(test func(v, want float64) bool) (predicate, error) {
		want, ok := asNumber(cond.Value)
		if !ok {
			return nil, errBadValue(cond.Value)
		}
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && test(v, want)
		}, nil
	}
	switch cond.Operator {
	case model.OpEq:
		return cmp(func(v, w float64) bool { return v == w })
	case model.OpNeq:
		return cmp(func(v, w float64) bool { return v != w })
	case model.OpGt:
		return cmp(func(v, w float64) bool { return v > w })
	case model.OpGte:
		return cmp(func(v, w float64) bool { return v >= w })
	case model.OpLt:
		return cmp(func(v, w float64) bool { return v < w })
	case model.OpLte:
		return cmp(func(v, w float64) bool { return v <= w })
	case model.OpBetween:
		lo, ok1 := asNumber(cond.Value)
		hi, ok2 := asNumber(cond.Value2)
		if !ok1 || !ok2 {
			return nil, errBadValue(cond.Value)
		}
		// inclusive on both bounds
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && v >= lo && v <= hi
		}, nil
	case model.OpIn, model.OpNotIn:
		list, _ := cond.Value.([]any)
		set := make(map[float64]struct{}, len(list))
		for _, raw := range list {
			n, ok := asNumber(raw)
			if !ok {
				return nil, errBadValue(raw)
			}
			set[n] = struct{}{}
		}
		notIn := cond.Operator == model.OpNotIn
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			if !ok {
				return notIn
			}
			_, in := set[v]
			return in != notIn
		}, nil
	}
	return nil, errUnsupported(cond.Operator)
}

func compileTime(acc accessor, cond model.SegmentCondition) (predicate, error) {
	get := func(c *model.Customer, now time.Time) (time.Time, bool) {
		v, ok := acc.get(c, now)
		if !ok {
			return time.Time{}, false
		}
		return v.(time.Time), true
	}
	cmp := func(test func(v, want time.Time) bool) (predicate, error) {
		want, ok := asTime(cond.Value)
		if !ok {
			return nil, errBadValue(cond.Value)
		}
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && test(v, want)
		}, nil
	}
	switch cond.Operator {
	case model.OpGt:
		return cmp(func(v, w time.Time) bool { return v.After(w) })
	case model.OpGte:
		return cmp(func(v, w time.Time) bool { return !v.Before(w) })
	case model.OpLt:
		return cmp(func(v, w time.Time) bool { return v.Before(w) })
	case model.OpLte:
		return cmp(func(v, w time.Time) bool { return !v.After(w) })
	case model.OpBetween:
		lo, ok1 := asTime(cond.Value)
		hi, ok2 := asTime(cond.Value2)
		if !ok1 || !ok2 {
			return nil, errBadValue(cond.Value)
		}
		return func(c *model.Customer, now time.Time) bool {
			v, ok := get(c, now)
			return ok && !v.Before(lo) && !v.After(hi)
		}, nil
	}
	return nil, errUnsupported(cond.Operator)
}

func compileBool(acc accessor, cond model.SegmentCondition) (predicate, error) {
	want, ok := cond.Value.(bool)
	if !ok {
		return nil, errBadValue(cond.Value)
	}
	switch cond.Operator {
	case model.OpEq, model.OpNeq:
		neq := cond.Operator == model.OpNeq
		return func(c *model.Customer, now time.Time) bool {
			v, ok := acc.get(c, now)
			return ok && (v.(bool) == want) != neq
		}, nil
	}
	return nil, errUnsupported(cond.Operator)
}

// ====================== value coercion ======================

type badValueError struct{ v any }

func (e badValueError) Error() string { return "cannot interpret condition value" }

func errBadValue(v any) error { return badValueError{v: v} }

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func stringSet(v any) (map[string]struct{}, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errBadValue(v)
	}
	set := make(map[string]struct{}, len(list))
	for _, raw := range list {
		s, ok := asString(raw)
		if !ok {
			return nil, errBadValue(raw)
		}
		set[s] = struct{}{}
	}
	return set, nil
}
