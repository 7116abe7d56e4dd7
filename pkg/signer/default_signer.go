package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siwa-id/siwa-go/pkg/siwa"
	"github.com/siwa-id/siwa-go/pkg/wallet"
)

// DefaultRequestSigner implements RequestSigner with EIP-191 signatures
// over the canonical signature base.
type DefaultRequestSigner struct{}

// NewDefaultRequestSigner creates a new DefaultRequestSigner.
func NewDefaultRequestSigner() *DefaultRequestSigner {
	return &DefaultRequestSigner{}
}

// SignRequest signs an HTTP request with default options.
func (s *DefaultRequestSigner) SignRequest(ctx context.Context, req *http.Request, receiptToken string, walletSigner wallet.Signer, chainID uint64) error {
	return s.SignRequestWithOptions(ctx, req, receiptToken, walletSigner, chainID, nil)
}

// SignRequestWithOptions signs an HTTP request with custom options.
func (s *DefaultRequestSigner) SignRequestWithOptions(ctx context.Context, req *http.Request, receiptToken string, walletSigner wallet.Signer, chainID uint64, opts *SigningOptions) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if walletSigner == nil {
		return fmt.Errorf("wallet signer cannot be nil")
	}
	if receiptToken == "" {
		return fmt.Errorf("receipt cannot be empty")
	}
	if opts == nil {
		opts = &SigningOptions{}
	}

	req.Header.Set(HeaderReceipt, receiptToken)

	// Digest the body and restore it for the transport.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewBuffer(body))
	}
	if len(body) > 0 {
		req.Header.Set(HeaderContentDigest, ComputeContentDigest(body))
	}

	components := opts.Components
	if len(components) == 0 {
		components = []string{ComponentMethod, ComponentPath, ComponentAuthority}
		if len(body) > 0 {
			components = append(components, ComponentContentDigest)
		}
		components = append(components, ComponentReceipt)
	}

	created := opts.Created
	if created == 0 {
		created = time.Now().Unix()
	}

	nonce := opts.Nonce
	if nonce == "" {
		var err error
		nonce, err = siwa.GenerateNonce(siwa.DefaultNonceLength)
		if err != nil {
			return fmt.Errorf("failed to generate signature nonce: %w", err)
		}
	}

	signerAddress := opts.SignerAddress
	if signerAddress == "" {
		address, err := walletSigner.Address(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve signer address: %w", err)
		}
		signerAddress = address.Hex()
	}

	params := FormatSignatureParams(components, created, nonce, BuildKeyID(chainID, signerAddress))

	base, err := BuildSignatureBase(req, components, params)
	if err != nil {
		return fmt.Errorf("failed to build signature base: %w", err)
	}

	sig, err := walletSigner.SignMessage(ctx, []byte(base))
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	req.Header.Set(HeaderSignatureInput, "sig1="+params)
	req.Header.Set(HeaderSignature, "sig1=:"+base64.StdEncoding.EncodeToString(sig)+":")
	return nil
}

// DecodeSignatureHeader extracts the raw signature bytes from a
// Signature header value of the form sig1=:base64:.
func DecodeSignatureHeader(header string) ([]byte, error) {
	if len(header) < len("sig1=::") || header[:len("sig1=:")] != "sig1=:" || header[len(header)-1] != ':' {
		return nil, fmt.Errorf("invalid signature header format")
	}
	sig, err := base64.StdEncoding.DecodeString(header[len("sig1=:") : len(header)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return sig, nil
}
