package signer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa-id/siwa-go/pkg/wallet"
)

func TestDefaultRequestSigner_SignRequest(t *testing.T) {
	ctx := context.Background()

	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)
	address, err := walletSigner.Address(ctx)
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "https://api.example.com/protected", nil)
	require.NoError(t, err)

	s := NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(ctx, req, "receipt-token", walletSigner, 84532))

	assert.Equal(t, "receipt-token", req.Header.Get(HeaderReceipt))
	assert.NotEmpty(t, req.Header.Get(HeaderSignature))
	assert.Empty(t, req.Header.Get(HeaderContentDigest))

	input, err := ParseSignatureInput(req.Header.Get(HeaderSignatureInput))
	require.NoError(t, err)
	assert.Equal(t, []string{ComponentMethod, ComponentPath, ComponentAuthority, ComponentReceipt}, input.Components)
	assert.NotZero(t, input.Created)
	assert.NotEmpty(t, input.Nonce)
	assert.Equal(t, BuildKeyID(84532, address.Hex()), input.KeyID)

	// The signature must verify over the reconstructed base.
	base, err := BuildSignatureBase(req, input.Components, input.Params)
	require.NoError(t, err)

	sig, err := DecodeSignatureHeader(req.Header.Get(HeaderSignature))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	sig[64] -= 27

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(base)), sig)
	require.NoError(t, err)
	assert.Equal(t, address, crypto.PubkeyToAddress(*pub))
}

func TestDefaultRequestSigner_SignRequest_WithBody(t *testing.T) {
	ctx := context.Background()

	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	body := []byte(`{"tool":"search"}`)
	req, err := http.NewRequest("POST", "https://api.example.com/tools", bytes.NewReader(body))
	require.NoError(t, err)

	s := NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(ctx, req, "receipt-token", walletSigner, 84532))

	// The digest header is set and covered.
	require.NoError(t, VerifyContentDigest(req.Header.Get(HeaderContentDigest), body))

	input, err := ParseSignatureInput(req.Header.Get(HeaderSignatureInput))
	require.NoError(t, err)
	assert.Contains(t, input.Components, ComponentContentDigest)

	// The body must still be readable by the transport.
	got, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDefaultRequestSigner_ReceiptBound(t *testing.T) {
	// Swapping the receipt after signing must change the signature base.
	ctx := context.Background()

	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "https://api.example.com/protected", nil)
	require.NoError(t, err)

	s := NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(ctx, req, "receipt-a", walletSigner, 84532))

	input, err := ParseSignatureInput(req.Header.Get(HeaderSignatureInput))
	require.NoError(t, err)

	baseA, err := BuildSignatureBase(req, input.Components, input.Params)
	require.NoError(t, err)

	req.Header.Set(HeaderReceipt, "receipt-b")
	baseB, err := BuildSignatureBase(req, input.Components, input.Params)
	require.NoError(t, err)

	assert.NotEqual(t, baseA, baseB)
}

func TestDefaultRequestSigner_SignerAddressOverride(t *testing.T) {
	ctx := context.Background()

	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	delegated := "0x00000000000000000000000000000000000000AA"
	req, err := http.NewRequest("GET", "https://api.example.com/protected", nil)
	require.NoError(t, err)

	s := NewDefaultRequestSigner()
	err = s.SignRequestWithOptions(ctx, req, "receipt-token", walletSigner, 1, &SigningOptions{
		SignerAddress: delegated,
	})
	require.NoError(t, err)

	input, err := ParseSignatureInput(req.Header.Get(HeaderSignatureInput))
	require.NoError(t, err)
	assert.Equal(t, "eip155:1:"+delegated, input.KeyID)
}

func TestDefaultRequestSigner_InvalidInputs(t *testing.T) {
	ctx := context.Background()
	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)
	req, err := http.NewRequest("GET", "https://api.example.com/", nil)
	require.NoError(t, err)

	s := NewDefaultRequestSigner()
	assert.Error(t, s.SignRequest(ctx, nil, "receipt", walletSigner, 1))
	assert.Error(t, s.SignRequest(ctx, req, "", walletSigner, 1))
	assert.Error(t, s.SignRequest(ctx, req, "receipt", nil, 1))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, s.SignRequest(cancelled, req, "receipt", walletSigner, 1))
}

func TestParseSignatureInput(t *testing.T) {
	header := `sig1=("@method" "@path" "@authority" "x-siwa-receipt");created=1736900000;nonce="abcDEF123456";keyid="eip155:84532:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"`

	input, err := ParseSignatureInput(header)
	require.NoError(t, err)
	assert.Equal(t, []string{"@method", "@path", "@authority", "x-siwa-receipt"}, input.Components)
	assert.Equal(t, int64(1736900000), input.Created)
	assert.Equal(t, "abcDEF123456", input.Nonce)
	assert.Equal(t, "eip155:84532:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", input.KeyID)

	tests := []struct {
		name   string
		header string
	}{
		{name: "wrong label", header: `sig2=("@method");keyid="eip155:1:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"`},
		{name: "no components", header: `sig1=();keyid="eip155:1:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"`},
		{name: "no keyid", header: `sig1=("@method");created=1`},
		{name: "empty", header: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignatureInput(tt.header)
			assert.Error(t, err)
		})
	}
}

func TestParseKeyID(t *testing.T) {
	chainID, address, err := ParseKeyID("eip155:84532:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	require.NoError(t, err)
	assert.Equal(t, uint64(84532), chainID)
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", address.Hex())

	for _, bad := range []string{
		"eip155:84532",
		"solana:84532:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		"eip155:base:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		"eip155:1:nothex",
		"",
	} {
		_, _, err := ParseKeyID(bad)
		assert.Error(t, err, "keyid %q should be rejected", bad)
	}
}

func TestDecodeSignatureHeader(t *testing.T) {
	sig, err := DecodeSignatureHeader("sig1=:aGVsbG8=:")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), sig)

	for _, bad := range []string{"", "sig1=aGVsbG8=", "sig1=:!!!:", ":aGVsbG8=:"} {
		_, err := DecodeSignatureHeader(bad)
		assert.Error(t, err, "header %q should be rejected", bad)
	}
}

func TestContentDigest(t *testing.T) {
	body := []byte("payload")
	digest := ComputeContentDigest(body)
	assert.True(t, strings.HasPrefix(digest, "sha-256=:"))

	require.NoError(t, VerifyContentDigest(digest, body))
	assert.Error(t, VerifyContentDigest(digest, []byte("other")))
	assert.Error(t, VerifyContentDigest("md5=:abc:", body))
}
