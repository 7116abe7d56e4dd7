// Package server provides HTTP middleware that verifies signed agent
// requests: receipt validation, signature-base reconstruction, signer
// recovery, replay protection and an optional bot-defense challenge
// gate. Handlers behind the middleware receive the verified agent
// identity through the request context.
package server
