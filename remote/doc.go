// Package remote describes where an environment lives on a git host.
//
// Ref carries an optional organisation, domain and protocol next to the
// mandatory repository name and renders HTTPS or SSH clone URLs, filling
// absent fields with fixed defaults. Parse accepts the short forms an
// operator types on the command line ("widgets", "acme/widgets",
// "https://github.com/acme/widgets").
package remote
