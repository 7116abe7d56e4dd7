// Package wallet abstracts the signing capability used by agents.
//
// A Signer exposes exactly two operations: resolving the account address
// and signing a message with the account's key. Implementations never
// expose key material. Two implementations ship with the SDK:
//
//   - LocalSigner holds a secp256k1 private key in process memory and is
//     intended for development and tests.
//   - keyring.ProxySigner (pkg/keyring) delegates signing to a remote
//     keyring daemon that enforces signing policies.
//
// SignSIWAMessage builds and signs a sign-in message, resolving the
// account address from the signer so the signer remains the single
// source of truth for identity.
package wallet
