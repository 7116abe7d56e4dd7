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

package siwa

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryNamespace is the only chain namespace currently supported in
// registry references.
const RegistryNamespace = "eip155"

// ErrInvalidRegistryRef is returned by ParseRegistryRef for references
// that are not a well-formed {namespace}:{chainId}:{address} triple.
var ErrInvalidRegistryRef = errors.New("invalid agent registry reference")

// RegistryRef is a parsed CAIP-10-style registry reference such as
// "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb".
type RegistryRef struct {
	Namespace string
	ChainID   uint64
	Address   string
}

// String renders the reference back to its {namespace}:{chainId}:{address}
// form.
func (r RegistryRef) String() string {
	return r.Namespace + ":" + strconv.FormatUint(r.ChainID, 10) + ":" + r.Address
}

// ParseRegistryRef parses and validates a registry reference. The
// namespace must be "eip155", the chain id a decimal integer and the
// address a 20-byte hex account identifier.
func ParseRegistryRef(ref string) (RegistryRef, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return RegistryRef{}, ErrInvalidRegistryRef
	}
	if parts[0] != RegistryNamespace {
		return RegistryRef{}, ErrInvalidRegistryRef
	}

	chainID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return RegistryRef{}, ErrInvalidRegistryRef
	}

	if !strings.HasPrefix(parts[2], "0x") || !common.IsHexAddress(parts[2]) {
		return RegistryRef{}, ErrInvalidRegistryRef
	}

	return RegistryRef{
		Namespace: parts[0],
		ChainID:   chainID,
		Address:   parts[2],
	}, nil
}
