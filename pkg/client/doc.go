// Package client provides the agent-side SIWA client: nonce request,
// sign-in, and automatically signed HTTP requests carrying the receipt
// obtained at sign-in. Challenge-required rejections are solved and
// retried transparently.
package client
