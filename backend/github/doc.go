// Package github implements backend.Backend on GitHub (cloud or an
// enterprise API URL). Repository calls go through go-github with the
// cached bearer token; Login runs the OAuth device flow against the
// GitHub identity endpoints and re-authenticates the client in place.
package github
