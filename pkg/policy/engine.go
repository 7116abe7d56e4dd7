// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

package policy

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Decision is the outcome of evaluating a signing operation against a
// wallet's attached policies.
type Decision struct {
	Allowed bool

	// PolicyID and RuleName identify the matching rule; both are empty
	// when no rule matched and the fail-closed default applied.
	PolicyID string
	RuleName string

	Reason string
}

// Evaluate runs the engine: rules of all attached policies whose method
// matches are flattened in attachment order then rule order, and the
// first rule whose conditions all hold decides. No match means DENY.
func Evaluate(method string, facts Facts, policies []Policy) Decision {
	for _, p := range policies {
		for _, rule := range p.Rules {
			if rule.Method != method {
				continue
			}
			if !ruleMatches(rule, facts) {
				continue
			}
			return Decision{
				Allowed:  rule.Action == ActionAllow,
				PolicyID: p.ID,
				RuleName: rule.Name,
				Reason:   fmt.Sprintf("rule %q matched", rule.Name),
			}
		}
	}
	return Decision{Allowed: false, Reason: "no matching rule"}
}

// ruleMatches reports whether every condition of the rule holds. An
// empty condition list is vacuously true.
func ruleMatches(rule Rule, facts Facts) bool {
	for _, cond := range rule.Conditions {
		if !conditionHolds(cond, facts) {
			return false
		}
	}
	return true
}

// conditionHolds is total: any extraction or comparison failure makes
// the condition false rather than an error, so a malformed condition
// can never accidentally widen what a policy allows.
func conditionHolds(cond Condition, facts Facts) bool {
	var factValue any
	var ok bool

	switch cond.FieldSource {
	case SourceTransaction:
		factValue, ok = facts.Transaction[cond.Field]
	case SourceMessage:
		factValue, ok = facts.Message[cond.Field]
	case SourceAuthorization:
		factValue, ok = facts.Authorization[cond.Field]
	case SourceCalldata:
		decoded, err := DecodeCalldata(cond.ABI, facts.Calldata)
		if err != nil {
			return false
		}
		factValue, ok = decoded[cond.Field]
	default:
		return false
	}
	if !ok {
		return false
	}

	switch cond.Operator {
	case OpEq:
		return valuesEqual(factValue, cond.Value)
	case OpNeq:
		return !valuesEqual(factValue, cond.Value)
	case OpLte:
		cmp, ok := compareNumeric(factValue, cond.Value)
		return ok && cmp <= 0
	case OpGte:
		cmp, ok := compareNumeric(factValue, cond.Value)
		return ok && cmp >= 0
	case OpIn:
		members, ok := cond.Value.([]any)
		if !ok {
			return false
		}
		for _, member := range members {
			if valuesEqual(factValue, member) {
				return true
			}
		}
		return false
	case OpMatches:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false
		}
		rx, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return rx.MatchString(stringify(factValue))
	default:
		return false
	}
}

// valuesEqual compares a fact against a condition value. Numbers are
// compared numerically regardless of representation; hex strings of
// equal bytes (addresses in different checksum casing) are equal.
func valuesEqual(fact, want any) bool {
	if fb, ok := toBigInt(fact); ok {
		if wb, ok := toBigInt(want); ok {
			return fb.Cmp(wb) == 0
		}
	}

	fs, ws := stringify(fact), stringify(want)
	if strings.HasPrefix(fs, "0x") && strings.HasPrefix(ws, "0x") {
		return strings.EqualFold(fs, ws)
	}
	return fs == ws
}

func compareNumeric(fact, want any) (int, bool) {
	fb, ok := toBigInt(fact)
	if !ok {
		return 0, false
	}
	wb, ok := toBigInt(want)
	if !ok {
		return 0, false
	}
	return fb.Cmp(wb), true
}

// toBigInt widens any numeric representation a fact or a JSON-decoded
// condition value may use. Hex strings with a 0x prefix only count as
// numbers when short enough to be a quantity rather than an address.
func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float64:
		f := new(big.Float).SetFloat64(n)
		if !f.IsInt() {
			return nil, false
		}
		i, _ := f.Int(nil)
		return i, true
	case string:
		if n == "" || strings.HasPrefix(n, "0x") {
			return nil, false
		}
		i, ok := new(big.Int).SetString(n, 10)
		return i, ok
	}
	return nil, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *big.Int:
		return s.String()
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		if f := new(big.Float).SetFloat64(s); f.IsInt() {
			i, _ := f.Int(nil)
			return i.String()
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
