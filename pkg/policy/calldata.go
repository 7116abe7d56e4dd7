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
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DecodeCalldata decodes contract calldata with the given ABI into a
// flat fact map: the matched function name under "function" and every
// parameter under "{function}.{param}", with tuple members flattened
// into deeper dotted paths.
func DecodeCalldata(abiJSON []byte, data []byte) (map[string]any, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata shorter than a function selector")
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid abi: %w", err)
	}

	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("selector not found in abi: %w", err)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s arguments: %w", method.Name, err)
	}

	facts := map[string]any{"function": method.Name}
	for i, input := range method.Inputs {
		name := input.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		flattenArgument(facts, method.Name+"."+name, args[i])
	}
	return facts, nil
}

// flattenArgument normalizes a decoded ABI value into fact-comparable
// form. Addresses and byte slices become hex strings; integers stay
// big.Int so numeric operators work on them. Tuples decode to
// reflect-generated structs and arrays to typed slices, so both are
// walked reflectively.
func flattenArgument(facts map[string]any, path string, value any) {
	switch v := value.(type) {
	case common.Address:
		facts[path] = v.Hex()
	case *big.Int:
		facts[path] = v
	case []byte:
		facts[path] = hexutil.Encode(v)
	case [32]byte:
		facts[path] = hexutil.Encode(v[:])
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Struct:
			rt := rv.Type()
			for i := 0; i < rv.NumField(); i++ {
				field := rt.Field(i)
				if !field.IsExported() {
					continue
				}
				flattenArgument(facts, path+"."+tupleMemberName(field.Name), rv.Field(i).Interface())
			}
		case reflect.Slice, reflect.Array:
			if rv.Type().Elem().Kind() == reflect.Uint8 {
				b := make([]byte, rv.Len())
				reflect.Copy(reflect.ValueOf(b), rv)
				facts[path] = hexutil.Encode(b)
				return
			}
			for i := 0; i < rv.Len(); i++ {
				flattenArgument(facts, fmt.Sprintf("%s.%d", path, i), rv.Index(i).Interface())
			}
		default:
			facts[path] = value
		}
	}
}

// tupleMemberName maps a generated struct field back to its ABI
// component name: the decoder camel-cases the first rune, nothing else.
func tupleMemberName(field string) string {
	runes := []rune(field)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
