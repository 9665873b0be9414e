package bitbucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/term"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/remote"
)

const maxBodySize = 1 << 20

// DefaultSSHPort is the port Bitbucket Server serves
// git over SSH on unless configured otherwise.
const DefaultSSHPort = "7999"

// ErrNoTerminal is returned by the default prompt when
// stdin is not a terminal.
var ErrNoTerminal = errors.New(
	"cannot prompt for an access token: stdin is not a terminal",
)

// PromptFunc reads a secret typed by the operator.
type PromptFunc func() (string, error)

// Config holds the settings of a Bitbucket backend.
type Config struct {
	// APIURL is the REST base, e.g.
	// "https://bb.example.com/rest/api/1.0".
	APIURL string
	// SSHHost is the host[:port] of the SSH endpoint.
	// Defaults to the API host name on DefaultSSHPort.
	SSHHost string
	// Token is the cached HTTP access token.
	Token string
	// Store receives the token entered at Login.
	Store backend.TokenStore
	// Out receives the login instructions. Defaults to
	// os.Stdout.
	Out io.Writer
	// Prompt defaults to a no-echo terminal read.
	Prompt PromptFunc
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Backend talks to the Bitbucket Server REST API.
//
// Pattern: Strategy -- implements backend.Backend.
type Backend struct {
	api     *url.URL
	base    string
	sshHost string
	token   string
	store   backend.TokenStore
	out     io.Writer
	prompt  PromptFunc
	client  *http.Client
}

var _ backend.Backend = (*Backend)(nil)

type repoProject struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Name    string       `json:"name"`
	Slug    string       `json:"slug,omitempty"`
	ScmID   string       `json:"scmId,omitempty"`
	Public  bool         `json:"public"`
	Project *repoProject `json:"project,omitempty"`
}

type apiErrors struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// New validates cfg and returns a Backend.
func New(cfg Config) (*Backend, error) {
	const errCtx = "creating bitbucket backend"

	if cfg.APIURL == "" {
		return nil, fmt.Errorf(
			"%s: api url must be set", errCtx,
		)
	}

	base := strings.TrimSuffix(cfg.APIURL, "/")

	api, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: api url: %w", errCtx, err,
		)
	}

	b := &Backend{
		api:     api,
		base:    base,
		sshHost: cfg.SSHHost,
		token:   cfg.Token,
		store:   cfg.Store,
		out:     cfg.Out,
		prompt:  cfg.Prompt,
		client:  cfg.HTTPClient,
	}

	if b.sshHost == "" {
		b.sshHost = net.JoinHostPort(
			api.Hostname(), DefaultSSHPort,
		)
	}

	if b.out == nil {
		b.out = os.Stdout
	}

	if b.prompt == nil {
		b.prompt = terminalPrompt
	}

	if b.client == nil {
		b.client = http.DefaultClient
	}

	return b, nil
}

// RepositoryExists reports whether the repository
// name exists in project org.
func (b *Backend) RepositoryExists(
	ctx context.Context,
	org string,
	name string,
) (bool, error) {
	const errCtx = "checking bitbucket repository"

	status, body, err := b.do(
		ctx, http.MethodGet, b.repoPath(org, name), nil,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= http.StatusBadRequest:
		return false, fmt.Errorf(
			"%s: %w", errCtx, statusError(status, body),
		)
	}

	var repo repository

	if err := json.Unmarshal(body, &repo); err != nil {
		return false, fmt.Errorf(
			"%s: decode response: %w", errCtx, err,
		)
	}

	return repo.Name != "", nil
}

// CreateRepository creates a non-public repository
// name in project org.
func (b *Backend) CreateRepository(
	ctx context.Context,
	org string,
	name string,
) error {
	const errCtx = "creating bitbucket repository"

	payload, err := json.Marshal(&repository{
		Name:   name,
		ScmID:  "git",
		Public: false,
	})
	if err != nil {
		return fmt.Errorf(
			"%s: marshal request: %w", errCtx, err,
		)
	}

	status, body, err := b.do(
		ctx,
		http.MethodPost,
		"/projects/"+url.PathEscape(org)+"/repos",
		payload,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if status < http.StatusOK ||
		status >= http.StatusMultipleChoices {
		slog.Warn(
			"bitbucket refused repository creation",
			"org", org,
			"name", name,
			"status", status,
		)

		return fmt.Errorf(
			"%s: %w", errCtx, statusError(status, body),
		)
	}

	slog.Info(
		"created bitbucket repository",
		"project", org,
		"name", name,
	)

	return nil
}

// IdentityOf returns the reference of org/repo on
// the API host, reachable over SSH on the SSH host.
func (b *Backend) IdentityOf(org, repo string) remote.Ref {
	return remote.Ref{
		Org:      org,
		Repo:     repo,
		Domain:   b.api.Host,
		Protocol: b.api.Scheme + "://",
		SSHHost:  b.sshHost,
	}
}

// Login prompts for an HTTP access token, stores it
// and uses it for the following calls.
func (b *Backend) Login(context.Context) error {
	const errCtx = "logging in to bitbucket"

	if b.store == nil {
		return fmt.Errorf(
			"%s: token store must be set", errCtx,
		)
	}

	if _, err := fmt.Fprintf(
		b.out,
		"Create an HTTP access token at %s://%s"+
			"/plugins/servlet/access-tokens/manage\n"+
			"and paste it here: ",
		b.api.Scheme, b.api.Host,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	token, err := b.prompt()
	if err != nil {
		return fmt.Errorf("%s: prompt: %w", errCtx, err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf(
			"%s: empty access token", errCtx,
		)
	}

	if err := b.store.Store(token); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	b.token = token

	slog.Info("authenticated with bitbucket")

	return nil
}

func (b *Backend) repoPath(org, name string) string {
	return "/projects/" + url.PathEscape(org) +
		"/repos/" + url.PathEscape(name)
}

// do sends one authenticated request and returns the
// status code and the (bounded) body.
func (b *Backend) do(
	ctx context.Context,
	method string,
	path string,
	payload []byte,
) (int, []byte, error) {
	const errCtx = "calling bitbucket"

	if b.token == "" {
		return 0, nil, backend.ErrNotAuthenticated
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, b.base+path, rdr,
	)
	if err != nil {
		return 0, nil, fmt.Errorf(
			"%s: build request: %w", errCtx, err,
		)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	if payload != nil {
		req.Header.Set(
			"Content-Type",
			"application/json; charset=utf-8",
		)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf(
			"%s: send request: %w", errCtx, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(
		io.LimitReader(resp.Body, maxBodySize),
	)
	if err != nil {
		return 0, nil, fmt.Errorf(
			"%s: read response: %w", errCtx, err,
		)
	}

	slog.Debug(
		"bitbucket response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
	)

	return resp.StatusCode, body, nil
}

// statusError keeps the provider's message text. The
// raw body is used when it is not the usual errors
// envelope.
func statusError(status int, body []byte) error {
	var env apiErrors

	if err := json.Unmarshal(body, &env); err == nil &&
		len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}

		return fmt.Errorf(
			"unexpected status %d: %s",
			status, strings.Join(msgs, "; "),
		)
	}

	return fmt.Errorf(
		"unexpected status %d: %s",
		status, strings.TrimSpace(string(body)),
	)
}

func terminalPrompt() (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec

	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}

	secret, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}

	fmt.Fprintln(os.Stderr) //nolint:errcheck

	return string(secret), nil
}
