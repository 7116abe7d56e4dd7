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
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the candidate transaction a signing request carries.
// Hex-encoded quantities use go-ethereum's JSON conventions.
type Transaction struct {
	From    string        `json:"from,omitempty"`
	To      string        `json:"to"`
	Value   *hexutil.Big  `json:"value,omitempty"`
	Data    hexutil.Bytes `json:"data,omitempty"`
	ChainID uint64        `json:"chain_id"`
	Gas     uint64        `json:"gas,omitempty"`
	Nonce   uint64        `json:"nonce,omitempty"`
}

// Authorization is an EIP-7702 delegation a signing request carries.
type Authorization struct {
	Contract string `json:"contract"`
	ChainID  uint64 `json:"chain_id"`
	Nonce    uint64 `json:"nonce,omitempty"`
}

// Facts is the full fact set extracted from one candidate signing
// operation. Calldata stays raw: each calldata condition decodes it
// with its own ABI during evaluation.
type Facts struct {
	Transaction   map[string]any
	Calldata      []byte
	Message       map[string]any
	Authorization map[string]any
}

// FactsForTransaction extracts transaction and calldata facts.
func FactsForTransaction(tx Transaction) Facts {
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToInt()
	}
	return Facts{
		Transaction: map[string]any{
			"from":     tx.From,
			"to":       tx.To,
			"value":    value,
			"chain_id": new(big.Int).SetUint64(tx.ChainID),
			"gas":      new(big.Int).SetUint64(tx.Gas),
			"nonce":    new(big.Int).SetUint64(tx.Nonce),
			"data":     hexutil.Encode(tx.Data),
		},
		Calldata: tx.Data,
	}
}

// FactsForMessage extracts message facts: the raw content, its length,
// and whether it looks like hex-encoded bytes (a common exfiltration
// vector for signing raw payloads through the message route).
func FactsForMessage(message string) Facts {
	return Facts{
		Message: map[string]any{
			"content": message,
			"length":  new(big.Int).SetInt64(int64(len(message))),
			"is_hex":  isHexPayload(message),
		},
	}
}

// FactsForAuthorization extracts delegation facts.
func FactsForAuthorization(auth Authorization) Facts {
	return Facts{
		Authorization: map[string]any{
			"contract": auth.Contract,
			"chain_id": new(big.Int).SetUint64(auth.ChainID),
			"nonce":    new(big.Int).SetUint64(auth.Nonce),
		},
	}
}

func isHexPayload(s string) bool {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" || len(trimmed)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(trimmed)
	return err == nil
}
