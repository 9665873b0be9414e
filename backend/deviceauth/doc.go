// Package deviceauth runs the OAuth 2.0 device authorization grant
// (RFC 8628) for a hosting provider.
//
// A login has three phases: request a device code, show the verification
// URI and user code to the operator, then poll the token endpoint until
// the provider grants, denies or expires the request. Polling is strictly
// sequential and waits between attempts; there is no attempt budget, the
// provider's expired_token answer ends an abandoned login. The token is
// handed to a backend.TokenStore only after a complete success.
package deviceauth
