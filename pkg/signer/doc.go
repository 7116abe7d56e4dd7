// Package signer signs outgoing HTTP requests with an agent's verified
// identity (ERC-8128 style HTTP message signatures).
//
// A signed request carries three artifacts:
//
//   - X-SIWA-Receipt: the receipt minted after SIWA verification
//   - Signature-Input: the covered components plus created timestamp,
//     replay nonce and a keyid of the form eip155:{chainId}:{address}
//   - Signature: sig1=:base64(r||s||v):
//
// The signature base covers the HTTP method, path, authority, a
// content digest for non-empty bodies, and the receipt's exact bytes.
// Because the receipt is a covered component, swapping the receipt
// after signing invalidates the signature.
//
//	reqSigner := signer.NewDefaultRequestSigner()
//	req, _ := http.NewRequest("POST", "https://api.example.com/tools", body)
//	err := reqSigner.SignRequest(ctx, req, receiptToken, walletSigner, 84532)
//
// The keyid address may be overridden via SigningOptions for delegated
// and contract accounts whose cryptographic signer differs from the
// account address.
package signer
