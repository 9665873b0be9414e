// Package bitbucket implements backend.Backend on Bitbucket Server
// (REST API 1.0). Bitbucket Server has no device authorization grant, so
// Login asks the operator for an HTTP access token instead and caches it
// like any other token.
package bitbucket
