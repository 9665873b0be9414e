package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/backend/deviceauth"
	"github.com/byte4ever/araki/remote"
)

const (
	// DefaultClientID is the araki OAuth application
	// registered on github.com.
	DefaultClientID = "Ov23linBvMCnaKWY4CBz"
	// Domain and Protocol are used by IdentityOf.
	Domain   = "github.com"
	Protocol = "https://"

	mediaType  = "application/vnd.github+json"
	apiVersion = "2022-11-28"
	userAgent  = "araki"
)

// DefaultScopes are requested by the device flow.
var DefaultScopes = []string{"repo", "admin:org"}

// Config holds the settings of a GitHub backend.
type Config struct {
	// Token is the cached bearer token. Empty leaves
	// the backend unauthenticated until Login.
	Token string
	// APIURL overrides https://api.github.com/.
	APIURL string
	// ClientID defaults to DefaultClientID.
	ClientID string
	// Endpoint defaults to endpoints.GitHub.
	Endpoint oauth2.Endpoint
	// Store receives the token obtained by Login.
	Store backend.TokenStore
	// Out receives the device flow instructions.
	// Defaults to os.Stdout.
	Out io.Writer
	// HTTPClient is the base client for API and
	// identity calls.
	HTTPClient *http.Client
	// Wait overrides the poll delay function.
	Wait deviceauth.WaitFunc
}

// Backend talks to the GitHub REST API.
//
// Pattern: Strategy -- implements backend.Backend.
type Backend struct {
	cfg    Config
	client *gh.Client
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend. Without cfg.Token every API
// call fails with backend.ErrNotAuthenticated.
func New(cfg Config) (*Backend, error) {
	const errCtx = "creating github backend"

	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}

	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = endpoints.GitHub
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	b := &Backend{cfg: cfg}

	if cfg.Token == "" {
		return b, nil
	}

	if err := b.authenticate(cfg.Token); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return b, nil
}

func (b *Backend) authenticate(token string) error {
	const errCtx = "authenticating github client"

	base := b.cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	hc := &http.Client{
		Transport: &headerTransport{base: base},
		Timeout:   b.cfg.HTTPClient.Timeout,
	}

	client := gh.NewClient(hc).WithAuthToken(token)
	client.UserAgent = userAgent

	if b.cfg.APIURL != "" {
		raw := b.cfg.APIURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}

		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf(
				"%s: api url: %w", errCtx, err,
			)
		}

		client.BaseURL = u
	}

	b.client = client

	return nil
}

// RepositoryExists reports whether org/name exists.
// A 404 answer is not an error.
func (b *Backend) RepositoryExists(
	ctx context.Context,
	org string,
	name string,
) (bool, error) {
	const errCtx = "checking github repository"

	if b.client == nil {
		return false, fmt.Errorf(
			"%s: %w", errCtx, backend.ErrNotAuthenticated,
		)
	}

	repo, resp, err := b.client.Repositories.Get(
		ctx, org, name,
	)
	if err != nil {
		if resp != nil &&
			resp.StatusCode == http.StatusNotFound {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return repo.GetName() != "", nil
}

// CreateRepository creates a private org/name. An
// existing repository surfaces GitHub's 422 answer.
func (b *Backend) CreateRepository(
	ctx context.Context,
	org string,
	name string,
) error {
	const errCtx = "creating github repository"

	if b.client == nil {
		return fmt.Errorf(
			"%s: %w", errCtx, backend.ErrNotAuthenticated,
		)
	}

	created, resp, err := b.client.Repositories.Create(
		ctx, org, &gh.Repository{
			Name:    gh.Ptr(name),
			Private: gh.Ptr(true),
		},
	)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		slog.Warn(
			"github refused repository creation",
			"org", org,
			"name", name,
			"status", status,
		)

		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"created github repository",
		"url", created.GetHTMLURL(),
	)

	return nil
}

// IdentityOf returns the github.com reference of
// org/repo.
func (*Backend) IdentityOf(org, repo string) remote.Ref {
	return remote.Ref{
		Org:      org,
		Repo:     repo,
		Domain:   Domain,
		Protocol: Protocol,
	}
}

// Login runs the device flow, stores the token and
// switches the backend to the new identity.
func (b *Backend) Login(ctx context.Context) error {
	const errCtx = "logging in to github"

	if b.cfg.Store == nil {
		return fmt.Errorf(
			"%s: token store must be set", errCtx,
		)
	}

	dc, err := deviceauth.New(deviceauth.Config{
		ClientID:   b.cfg.ClientID,
		Scopes:     DefaultScopes,
		Endpoint:   b.cfg.Endpoint,
		HTTPClient: b.cfg.HTTPClient,
		Out:        b.cfg.Out,
		Wait:       b.cfg.Wait,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	token, err := dc.Login(ctx, b.cfg.Store)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := b.authenticate(token); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("authenticated with github")

	return nil
}

// headerTransport pins the headers GitHub expects
// from araki on every request.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(
	req *http.Request,
) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Accept", mediaType)
	r.Header.Set("X-GitHub-Api-Version", apiVersion)
	r.Header.Set("User-Agent", userAgent)

	return t.base.RoundTrip(r)
}
