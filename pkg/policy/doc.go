// Package policy implements the declarative ALLOW/DENY engine that
// gates the key-custody boundary. Rules are evaluated against facts
// extracted from the candidate signing operation: raw transaction
// fields, ABI-decoded calldata, message text, or EIP-7702 delegation
// fields. Evaluation is pure and deterministic: first matching rule
// wins, and no matching rule means DENY.
package policy
