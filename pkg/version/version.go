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

// Package version provides version information for siwa-go and the
// protocol revisions it implements.
package version

const (
	// Version is the current version of siwa-go
	Version = "1.0.0-dev"

	// MessageVersion is the sign-in message format version emitted and
	// accepted by this library
	MessageVersion = "1"

	// ReceiptVersion is the receipt payload format version
	ReceiptVersion = "1"

	// RegistryERC is the identity registry interface this library
	// resolves agents against
	RegistryERC = "ERC-8004"
)

// Info contains detailed version information
type Info struct {
	SiwaGoVersion  string
	MessageVersion string
	ReceiptVersion string
	RegistryERC    string
}

// Get returns detailed version information
func Get() Info {
	return Info{
		SiwaGoVersion:  Version,
		MessageVersion: MessageVersion,
		ReceiptVersion: ReceiptVersion,
		RegistryERC:    RegistryERC,
	}
}
