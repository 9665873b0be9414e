package remote

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Defaults applied when the matching Ref field is
// empty.
const (
	DefaultDomain   = "github.com"
	DefaultProtocol = "https://"
	DefaultOrg      = "openteams-ai"
)

const (
	urlTemplate     = "{protocol}{domain}/{org}/{repo}"
	sshURLTemplate  = "git@{domain}:{org}/{repo}.git"
	sshHostTemplate = "ssh://git@{sshhost}/{org}/{repo}.git"
)

// ErrInvalidRef is returned by Parse when the input
// does not follow [[protocol://]domain/][org/]repo.
var ErrInvalidRef = errors.New("unrecognized repository reference")

var refPattern = regexp.MustCompile(
	`^(?:(?P<protocol>(?:git\+)?https?://)?` +
		`(?P<domain>github\.com|gitlab\.com)/)?` +
		`(?:(?P<org>[A-Za-z0-9_][A-Za-z0-9_.-]*)/)?` +
		`(?P<repo>[A-Za-z0-9_][A-Za-z0-9_.-]*?)` +
		`(?:\.git)?$`,
)

// Ref identifies a repository on a git host. Empty
// fields are absent and fall back to the package
// defaults when rendered; Repo is always set.
type Ref struct {
	Org      string
	Repo     string
	Domain   string
	Protocol string
	// SSHHost is the host[:port] of an SSH endpoint
	// that differs from Domain. When set, SSHURL uses
	// the ssh:// form.
	SSHHost  string
}

// URL renders the repository as an HTTPS style URL.
func (r Ref) URL() string {
	return fasttemplate.ExecuteString(
		urlTemplate, "{", "}", r.fields(),
	)
}

// SSHURL renders the repository as an scp-like SSH
// URL, or as an ssh:// URL on SSHHost.
func (r Ref) SSHURL() string {
	tpl := sshURLTemplate
	if r.SSHHost != "" {
		tpl = sshHostTemplate
	}

	return fasttemplate.ExecuteString(
		tpl, "{", "}", r.fields(),
	)
}

// String returns URL.
func (r Ref) String() string {
	return r.URL()
}

func (r Ref) fields() map[string]any {
	return map[string]any{
		"protocol": orDefault(r.Protocol, DefaultProtocol),
		"domain":   orDefault(r.Domain, DefaultDomain),
		"org":      orDefault(r.Org, DefaultOrg),
		"repo":     r.Repo,
		"sshhost":  r.SSHHost,
	}
}

// Parse reads a short repository reference such as
// "widgets", "acme/widgets" or
// "https://github.com/acme/widgets". Fields that are
// not spelled out stay empty.
func Parse(ref string) (Ref, error) {
	const errCtx = "parsing repository reference"

	m := refPattern.FindStringSubmatch(
		strings.TrimSpace(ref),
	)
	if m == nil {
		return Ref{}, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrInvalidRef, ref,
		)
	}

	group := func(name string) string {
		return m[refPattern.SubexpIndex(name)]
	}

	return Ref{
		Org:      group("org"),
		Repo:     group("repo"),
		Domain:   group("domain"),
		Protocol: group("protocol"),
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
