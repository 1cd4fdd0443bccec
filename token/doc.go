// Package token mints and verifies the gateway's signed bearer tokens.
//
// Tokens are three dot-separated base64url segments (header, claims,
// HMAC-SHA256 signature over the first two) carrying the claim set
// {sub, jti, role, iat, exp, nbf, iss, aud} plus an explicit extension
// map. The signing algorithm is pinned: a token presenting any other
// algorithm fails with ErrAlgorithmMismatch before claims are looked at.
// Signature comparison is constant-time.
//
// Access tokens are short-lived and stateless; refresh tokens are
// long-lived and only usable together with their server-side revocation
// record, which lives in the credential store.
package token
