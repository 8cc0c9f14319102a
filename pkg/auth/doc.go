// Package auth provides pluggable authentication for duplex exchanges.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// The package contributes two interceptors to the transport catalog. The
// "auth" interceptor turns the authenticated identity into the caller tag
// set the router authorizes against, and reads the caller capability set
// from the x-capabilities header. The "ratelimit" interceptor applies a
// token bucket per subject and service tier.
package auth
