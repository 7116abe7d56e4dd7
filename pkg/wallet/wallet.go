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

package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Signer is the signing capability of an agent account. Implementations
// sign with the account's native scheme (EIP-191 personal-sign for
// plain text payloads) and never return key material.
type Signer interface {
	// Address returns the account address of the signer.
	Address(ctx context.Context) (common.Address, error)

	// SignMessage signs the message with the account key and returns a
	// 65-byte r||s||v signature with v in {27, 28}.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}
