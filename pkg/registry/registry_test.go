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
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller simulates a registry contract with a single token.
type fakeCaller struct {
	tokenID *big.Int
	owner   common.Address
	code    map[common.Address][]byte

	// magicFor lists contract accounts that accept any signature.
	magicFor map[common.Address]bool

	callErr error
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}

	switch {
	case bytes.HasPrefix(msg.Data, registryABI.Methods["ownerOf"].ID):
		args, err := registryABI.Methods["ownerOf"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		if f.tokenID == nil || args[0].(*big.Int).Cmp(f.tokenID) != 0 {
			return nil, errors.New("execution reverted: ERC721: invalid token ID")
		}
		return registryABI.Methods["ownerOf"].Outputs.Pack(f.owner)

	case bytes.HasPrefix(msg.Data, registryABI.Methods["isValidSignature"].ID):
		magic := [4]byte{}
		if msg.To != nil && f.magicFor[*msg.To] {
			magic = erc1271Magic
		}
		return registryABI.Methods["isValidSignature"].Outputs.Pack(magic)
	}

	return nil, errors.New("unexpected call")
}

func (f *fakeCaller) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.code[account], nil
}

func TestClient_OwnerOf(t *testing.T) {
	ctx := context.Background()
	registryAddr := common.HexToAddress("0x8004AA63c570c570eBF15376c0dB199918BFe9Fb")
	owner := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")

	client := NewClient(&fakeCaller{tokenID: big.NewInt(42), owner: owner}, 0)

	got, err := client.OwnerOf(ctx, registryAddr, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	// Unknown token reverts.
	_, err = client.OwnerOf(ctx, registryAddr, big.NewInt(7))
	assert.Error(t, err)
}

func TestClient_IsValidSignature(t *testing.T) {
	ctx := context.Background()
	sca := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	other := common.HexToAddress("0x00000000000000000000000000000000000000BB")

	client := NewClient(&fakeCaller{magicFor: map[common.Address]bool{sca: true}}, 0)

	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x01}, 32))

	ok, err := client.IsValidSignature(ctx, sca, hash, []byte("sig"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsValidSignature(ctx, other, hash, []byte("sig"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_IsContract(t *testing.T) {
	ctx := context.Background()
	sca := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	eoa := common.HexToAddress("0x00000000000000000000000000000000000000BB")

	client := NewClient(&fakeCaller{code: map[common.Address][]byte{sca: {0x60, 0x80}}}, 0)

	isContract, err := client.IsContract(ctx, sca)
	require.NoError(t, err)
	assert.True(t, isContract)

	isContract, err = client.IsContract(ctx, eoa)
	require.NoError(t, err)
	assert.False(t, isContract)
}

func TestClient_CallError(t *testing.T) {
	client := NewClient(&fakeCaller{callErr: errors.New("rpc: connection refused")}, 0)

	_, err := client.OwnerOf(context.Background(), common.Address{}, big.NewInt(1))
	assert.Error(t, err)

	_, err = client.IsContract(context.Background(), common.Address{})
	assert.Error(t, err)
}
