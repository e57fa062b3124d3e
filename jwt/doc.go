// Package jwt manages session-token issuance and verification using a
// shared HS256 secret and strict validation semantics.
package jwt
