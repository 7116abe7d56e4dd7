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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	headerRx = regexp.MustCompile(`^(.+) wants you to sign in with your Agent account:$`)
	nonceRx  = regexp.MustCompile(`^[a-zA-Z0-9]{8,}$`)
)

// BuildMessage renders the fields into the canonical SIWA plaintext
// message. Optional fields are omitted entirely, never emitted empty.
// An empty Version defaults to MessageVersion.
func BuildMessage(f MessageFields) string {
	version := f.Version
	if version == "" {
		version = MessageVersion
	}

	lines := []string{
		f.Domain + " wants you to sign in with your Agent account:",
		f.Address,
		"",
	}

	if f.Statement != "" {
		lines = append(lines, f.Statement)
	}
	lines = append(lines, "")

	lines = append(lines,
		"URI: "+f.URI,
		"Version: "+version,
		"Agent ID: "+strconv.FormatUint(f.AgentID, 10),
		"Agent Registry: "+f.AgentRegistry,
		"Chain ID: "+strconv.FormatUint(f.ChainID, 10),
		"Nonce: "+f.Nonce,
		"Issued At: "+f.IssuedAt,
	)

	if f.ExpirationTime != "" {
		lines = append(lines, "Expiration Time: "+f.ExpirationTime)
	}
	if f.NotBefore != "" {
		lines = append(lines, "Not Before: "+f.NotBefore)
	}
	if f.RequestID != "" {
		lines = append(lines, "Request ID: "+f.RequestID)
	}

	return strings.Join(lines, "\n")
}

// ParseMessage parses a SIWA plaintext message back into structured
// fields. It is the inverse of BuildMessage: ParseMessage(BuildMessage(f))
// returns f for any well-formed f (a multi-line statement is trimmed of
// leading and trailing blank lines).
//
// All failures wrap ErrMalformedMessage.
func ParseMessage(message string) (MessageFields, error) {
	lines := strings.Split(message, "\n")
	if len(lines) < 2 {
		return MessageFields{}, fmt.Errorf("%w: missing domain line", ErrMalformedMessage)
	}

	header := headerRx.FindStringSubmatch(lines[0])
	if header == nil {
		return MessageFields{}, fmt.Errorf("%w: missing domain line", ErrMalformedMessage)
	}

	address := lines[1]
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return MessageFields{}, fmt.Errorf("%w: missing or malformed address", ErrMalformedMessage)
	}

	fieldMap := make(map[string]string)
	var stmtLines []string
	inStatement := false

	for i := 2; i < len(lines); i++ {
		line := lines[i]

		if i == 2 && line == "" {
			inStatement = true
			continue
		}

		if inStatement {
			if line == "" || strings.HasPrefix(line, "URI: ") {
				inStatement = false
				if strings.HasPrefix(line, "URI: ") {
					key, value, _ := strings.Cut(line, ": ")
					fieldMap[key] = value
				}
				continue
			}
			stmtLines = append(stmtLines, line)
			continue
		}

		if key, value, ok := strings.Cut(line, ": "); ok {
			fieldMap[key] = value
		}
	}

	for _, required := range []string{"URI", "Agent ID", "Agent Registry", "Chain ID", "Nonce", "Issued At"} {
		if fieldMap[required] == "" {
			return MessageFields{}, fmt.Errorf("%w: missing %s", ErrMalformedMessage, required)
		}
	}

	agentID, err := strconv.ParseUint(fieldMap["Agent ID"], 10, 64)
	if err != nil {
		return MessageFields{}, fmt.Errorf("%w: invalid agent id %q", ErrMalformedMessage, fieldMap["Agent ID"])
	}

	chainID, err := strconv.ParseUint(fieldMap["Chain ID"], 10, 64)
	if err != nil {
		return MessageFields{}, fmt.Errorf("%w: invalid chain id %q", ErrMalformedMessage, fieldMap["Chain ID"])
	}

	if !nonceRx.MatchString(fieldMap["Nonce"]) {
		return MessageFields{}, fmt.Errorf("%w: nonce must be at least 8 alphanumeric characters", ErrMalformedMessage)
	}

	version := fieldMap["Version"]
	if version == "" {
		version = MessageVersion
	}

	return MessageFields{
		Domain:         header[1],
		Address:        address,
		Statement:      strings.TrimSpace(strings.Join(stmtLines, "\n")),
		URI:            fieldMap["URI"],
		Version:        version,
		AgentID:        agentID,
		AgentRegistry:  fieldMap["Agent Registry"],
		ChainID:        chainID,
		Nonce:          fieldMap["Nonce"],
		IssuedAt:       fieldMap["Issued At"],
		ExpirationTime: fieldMap["Expiration Time"],
		NotBefore:      fieldMap["Not Before"],
		RequestID:      fieldMap["Request ID"],
	}, nil
}
