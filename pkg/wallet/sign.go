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
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// SignedMessage is the product of signing a SIWA message: the exact
// message text, the hex signature, and the resolved account address.
type SignedMessage struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

// SignSIWAMessage builds a SIWA message from the fields and signs it
// with the signer. The account address is resolved from the signer - the
// single source of truth. If fields.Address is set it must match the
// signer's address.
func SignSIWAMessage(ctx context.Context, fields siwa.MessageFields, signer Signer) (*SignedMessage, error) {
	address, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	if fields.Address != "" && !strings.EqualFold(fields.Address, address.Hex()) {
		return nil, fmt.Errorf("address mismatch: signer has %s, message claims %s", address.Hex(), fields.Address)
	}
	fields.Address = address.Hex()

	message := siwa.BuildMessage(fields)
	sig, err := signer.SignMessage(ctx, []byte(message))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return &SignedMessage{
		Message:   message,
		Signature: hexutil.Encode(sig),
		Address:   address.Hex(),
	}, nil
}
