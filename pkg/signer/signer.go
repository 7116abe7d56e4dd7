package signer

import (
	"context"
	"net/http"

	"github.com/siwa-id/siwa-go/pkg/wallet"
)

// Header names used by the request-signature layer.
const (
	HeaderReceipt        = "X-SIWA-Receipt"
	HeaderSignature      = "Signature"
	HeaderSignatureInput = "Signature-Input"
	HeaderContentDigest  = "Content-Digest"
)

// Signature base components.
const (
	ComponentMethod        = "@method"
	ComponentPath          = "@path"
	ComponentAuthority     = "@authority"
	ComponentContentDigest = "content-digest"
	ComponentReceipt       = "x-siwa-receipt"
)

// RequestSigner signs HTTP requests with a receipt-bound identity.
type RequestSigner interface {
	// SignRequest signs req with default options: method, path,
	// authority and receipt are covered, plus a content digest when the
	// request has a body.
	SignRequest(ctx context.Context, req *http.Request, receiptToken string, signer wallet.Signer, chainID uint64) error

	// SignRequestWithOptions signs req with custom options.
	SignRequestWithOptions(ctx context.Context, req *http.Request, receiptToken string, signer wallet.Signer, chainID uint64, opts *SigningOptions) error
}

// SigningOptions customizes signing.
type SigningOptions struct {
	// Components are the covered components, in order. Empty means the
	// default set.
	Components []string

	// Created is the signature timestamp (Unix seconds); 0 means now.
	Created int64

	// Nonce is the replay nonce; empty means a fresh random nonce.
	Nonce string

	// SignerAddress overrides the address embedded in the keyid, e.g.
	// for a delegated or contract account. Empty means the wallet
	// signer's own address.
	SignerAddress string
}
