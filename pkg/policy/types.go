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
	"encoding/json"
	"fmt"
)

// Action is a rule's decision when its conditions match.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

// Valid reports whether the action is a member of the closed set.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// FieldSource names the fact set a condition reads from. The set is
// closed: evaluation matches exhaustively over these values and treats
// anything else as a non-matching condition.
type FieldSource string

const (
	// SourceTransaction exposes raw transaction fields: to, from,
	// value, chain_id, gas, nonce, data.
	SourceTransaction FieldSource = "ethereum_transaction"

	// SourceCalldata exposes ABI-decoded calldata: the function name
	// under "function" and parameters under dotted paths like
	// "transfer.to". Conditions on this source must carry an ABI.
	SourceCalldata FieldSource = "ethereum_calldata"

	// SourceMessage exposes message facts: content, length, is_hex.
	SourceMessage FieldSource = "message"

	// SourceAuthorization exposes EIP-7702 delegation facts: contract
	// and chain_id.
	SourceAuthorization FieldSource = "ethereum_authorization"
)

// Valid reports whether the field source is a member of the closed set.
func (s FieldSource) Valid() bool {
	switch s {
	case SourceTransaction, SourceCalldata, SourceMessage, SourceAuthorization:
		return true
	}
	return false
}

// Operator compares an extracted fact against a condition value.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpLte     Operator = "lte"
	OpGte     Operator = "gte"
	OpIn      Operator = "in"
	OpMatches Operator = "matches"
)

// Valid reports whether the operator is a member of the closed set.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpLte, OpGte, OpIn, OpMatches:
		return true
	}
	return false
}

// Signing methods a rule can apply to. These mirror the signing routes
// of the key-custody service.
const (
	MethodSignMessage       = "sign_message"
	MethodSignTransaction   = "sign_transaction"
	MethodSignAuthorization = "sign_authorization"
)

// Condition is one predicate of a rule. Field is a key in the fact set
// named by FieldSource; for calldata facts ABI must hold the contract
// ABI JSON used to decode the call.
type Condition struct {
	FieldSource FieldSource     `json:"field_source"`
	Field       string          `json:"field"`
	Operator    Operator        `json:"operator"`
	Value       any             `json:"value"`
	ABI         json.RawMessage `json:"abi,omitempty"`
}

// Rule is an ordered predicate list with a decision. A rule with no
// conditions matches every operation of its method; that is how
// catch-all defaults are written.
type Rule struct {
	Name       string      `json:"name"`
	Method     string      `json:"method"`
	Action     Action      `json:"action"`
	Conditions []Condition `json:"conditions"`
}

// Policy is an ordered list of rules with a stable identity.
type Policy struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// Validate rejects policies that reference values outside the closed
// enums, so a typo in a stored policy fails at write time rather than
// silently never matching.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	for i, rule := range p.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name cannot be empty", i)
		}
		if rule.Method == "" {
			return fmt.Errorf("rule %q: method cannot be empty", rule.Name)
		}
		if !rule.Action.Valid() {
			return fmt.Errorf("rule %q: invalid action %q", rule.Name, rule.Action)
		}
		for j, cond := range rule.Conditions {
			if !cond.FieldSource.Valid() {
				return fmt.Errorf("rule %q condition %d: invalid field source %q", rule.Name, j, cond.FieldSource)
			}
			if !cond.Operator.Valid() {
				return fmt.Errorf("rule %q condition %d: invalid operator %q", rule.Name, j, cond.Operator)
			}
			if cond.Field == "" {
				return fmt.Errorf("rule %q condition %d: field cannot be empty", rule.Name, j)
			}
			if cond.FieldSource == SourceCalldata && len(cond.ABI) == 0 {
				return fmt.Errorf("rule %q condition %d: calldata conditions require an abi", rule.Name, j)
			}
		}
	}
	return nil
}
