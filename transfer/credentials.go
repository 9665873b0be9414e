package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// CredentialType is the kind of credential a remote
// asks for.
type CredentialType int

// Credential kinds a remote may request.
const (
	CredentialSSHKey CredentialType = iota + 1
	CredentialUserPass
)

var (
	// ErrSSHOnly is returned when a remote asks for
	// anything but an SSH key.
	ErrSSHOnly = errors.New(
		"only ssh-agent authentication is supported, " +
			"use an ssh remote (git@host:org/repo.git)",
	)
	// ErrAgentExhausted is returned when the remote
	// asks again after the agent keys were offered.
	ErrAgentExhausted = errors.New(
		"the remote rejected every key of the ssh-agent",
	)
	// ErrNoUsername is returned when the remote url
	// carries no user for the ssh login.
	ErrNoUsername = errors.New(
		"the remote url has no username for ssh",
	)
	// ErrNoAgent is returned when SSH_AUTH_SOCK is not
	// set.
	ErrNoAgent = errors.New(
		"SSH_AUTH_SOCK is not set, start an ssh-agent",
	)
)

// SignersFunc returns the keys offered to a remote.
type SignersFunc func() ([]ssh.Signer, error)

// Credentials answers the credential requests of one
// clone or push. It is not safe for concurrent use and
// must not be shared between operations.
type Credentials struct {
	signers SignersFunc
	tried   bool
	conn    io.Closer
}

// NewCredentials returns Credentials backed by the
// ssh-agent at SSH_AUTH_SOCK. The agent is contacted
// only when a remote asks for a key.
func NewCredentials() *Credentials {
	c := &Credentials{}
	c.signers = c.agentSigners

	return c
}

// NewCredentialsWith returns Credentials that offer the
// keys of signers instead of the ssh-agent.
func NewCredentialsWith(signers SignersFunc) *Credentials {
	return &Credentials{signers: signers}
}

// Negotiate answers one credential request. The first
// SSH key request gets the agent keys; every later one
// fails with ErrAgentExhausted without contacting the
// agent again.
func (c *Credentials) Negotiate(
	username string,
	allowed CredentialType,
) ([]ssh.Signer, error) {
	if allowed != CredentialSSHKey {
		return nil, ErrSSHOnly
	}

	if c.tried {
		return nil, ErrAgentExhausted
	}

	if username == "" {
		return nil, ErrNoUsername
	}

	c.tried = true

	signers, err := c.signers()
	if err != nil {
		return nil, fmt.Errorf(
			"reading ssh-agent keys: %w", err,
		)
	}

	slog.Debug(
		"offering ssh-agent keys",
		"user", username,
		"keys", len(signers),
	)

	return signers, nil
}

// AuthFor returns the go-git auth method for url. SSH
// remotes negotiate through c; other protocols are
// tried anonymously.
func (c *Credentials) AuthFor(
	url string,
) (transport.AuthMethod, error) {
	const errCtx = "selecting credentials"

	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if ep.Protocol != "ssh" {
		return nil, nil
	}

	user := ep.User

	return &gitssh.PublicKeysCallback{
		User: user,
		Callback: func() ([]ssh.Signer, error) {
			return c.Negotiate(user, CredentialSSHKey)
		},
	}, nil
}

// Close releases the agent connection, if any.
func (c *Credentials) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

// classify turns a credential demand of an anonymous
// remote into the negotiation answer.
func (c *Credentials) classify(err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		_, nerr := c.Negotiate("", CredentialUserPass)

		return fmt.Errorf("%w: %w", nerr, err)
	}

	return err
}

func (c *Credentials) agentSigners() ([]ssh.Signer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, ErrNoAgent
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf(
			"dialing ssh-agent: %w", err,
		)
	}

	c.conn = conn

	return agent.NewClient(conn).Signers()
}
