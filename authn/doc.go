// Package authn authenticates HTTP requests that carry a bearer token.
//
// An Authenticator reads the Authorization header, hands the raw token to a
// provider Verifier and reports one of three outcomes:
//   - NoCredentials: no bearer token was presented (try the next method)
//   - Authenticated: the provider verified the token; a Principal is attached
//   - Rejected: a token was presented but could not be verified
//
// Verification itself is delegated to the identity provider (Firebase or a
// generic OpenID Connect issuer). The provider client is the only shared
// state; it is either built at startup (Static) or on first use behind a
// one-time guard (Lazy).
package authn
