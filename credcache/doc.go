// Package credcache persists the single bearer token araki uses to talk to
// its backend. The token lives in one file inside the configuration
// directory, is rewritten on every successful login and is readable by
// its owner only.
package credcache
