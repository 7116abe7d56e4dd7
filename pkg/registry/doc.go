// Package registry talks to the onchain identity registry.
//
// The registry is an ERC-721 contract mapping agent token ids to owning
// accounts. This package exposes the three calls the verification flow
// needs: ownerOf for ownership resolution, isValidSignature (ERC-1271)
// for smart-contract-wallet fallback validation, and eth_getCode for
// EOA/SCA detection.
//
// The Client depends only on the narrow ContractCaller interface, which
// *ethclient.Client satisfies; tests substitute an in-memory fake.
package registry
