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
	"crypto/rand"
	"fmt"
)

// DefaultNonceLength is the length of nonces produced by GenerateNonce
// when no explicit length is requested.
const DefaultNonceLength = 16

const nonceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNonce returns a cryptographically random alphanumeric nonce.
// Lengths below 8 are rounded up to DefaultNonceLength so generated
// nonces always satisfy the message nonce invariant.
func GenerateNonce(length int) (string, error) {
	if length < 8 {
		length = DefaultNonceLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	for i, b := range buf {
		buf[i] = nonceCharset[int(b)%len(nonceCharset)]
	}
	return string(buf), nil
}
