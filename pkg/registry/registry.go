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

package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc1271Magic is the bytes4 value a contract account returns from
// isValidSignature when the signature is valid.
var erc1271Magic = [4]byte{0x16, 0x26, 0xba, 0x7e}

const registryABIJSON = `[
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("registry: invalid ABI: %v", err))
	}
	return parsed
}

// ContractCaller is the slice of the Ethereum client the registry needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// DefaultCallTimeout bounds every onchain call issued by the Client.
const DefaultCallTimeout = 10 * time.Second

// Client resolves agent ownership against an identity registry contract.
type Client struct {
	caller  ContractCaller
	timeout time.Duration
}

// NewClient wraps a ContractCaller. A timeout of 0 uses
// DefaultCallTimeout.
func NewClient(caller ContractCaller, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{caller: caller, timeout: timeout}
}

// Dial connects to an Ethereum RPC endpoint and returns a Client backed
// by it.
func Dial(rawurl string, timeout time.Duration) (*Client, error) {
	ec, err := ethclient.Dial(rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawurl, err)
	}
	return NewClient(ec, timeout), nil
}

// OwnerOf returns the account owning the given agent token. A revert
// (token does not exist) surfaces as an error; callers map it to
// NOT_REGISTERED.
func (c *Client) OwnerOf(ctx context.Context, registry common.Address, agentID *big.Int) (common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := registryABI.Pack("ownerOf", agentID)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack ownerOf call: %w", err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &registry, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf call failed: %w", err)
	}

	results, err := registryABI.Unpack("ownerOf", out)
	if err != nil || len(results) != 1 {
		return common.Address{}, fmt.Errorf("failed to unpack ownerOf result: %w", err)
	}

	owner, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf returned unexpected type %T", results[0])
	}
	return owner, nil
}

// IsValidSignature performs the ERC-1271 callback on a contract account.
// It returns true iff the account returns the 0x1626ba7e magic value.
func (c *Client) IsValidSignature(ctx context.Context, account common.Address, hash [32]byte, signature []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := registryABI.Pack("isValidSignature", hash, signature)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature call: %w", err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("isValidSignature call failed: %w", err)
	}

	results, err := registryABI.Unpack("isValidSignature", out)
	if err != nil || len(results) != 1 {
		return false, fmt.Errorf("failed to unpack isValidSignature result: %w", err)
	}

	magic, ok := results[0].([4]byte)
	if !ok {
		return false, fmt.Errorf("isValidSignature returned unexpected type %T", results[0])
	}
	return magic == erc1271Magic, nil
}

// IsContract reports whether the account has deployed code.
func (c *Client) IsContract(ctx context.Context, account common.Address) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	code, err := c.caller.CodeAt(ctx, account, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode failed: %w", err)
	}
	return len(code) > 0, nil
}
