package gitlab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/backend/deviceauth"
	"github.com/byte4ever/araki/remote"
)

// DefaultHost is used when Config.Host is empty.
const DefaultHost = "https://gitlab.com"

// DefaultScopes are requested by the device flow.
var DefaultScopes = []string{"api"}

// Config holds the settings of a GitLab backend.
type Config struct {
	// Host is the instance base URL
	// (e.g. "https://gitlab.com").
	Host string
	// Token is the cached OAuth token. Empty leaves
	// the backend unauthenticated until Login.
	Token string
	// ClientID is the OAuth application id
	// registered on Host. Only Login needs it.
	ClientID string
	// Store receives the token obtained by Login.
	Store backend.TokenStore
	// Out receives the device flow instructions.
	// Defaults to os.Stdout.
	Out io.Writer
	// HTTPClient is used for API and identity calls.
	HTTPClient *http.Client
	// Wait overrides the poll delay function.
	Wait deviceauth.WaitFunc
}

// Backend talks to the GitLab REST API v4.
//
// Pattern: Strategy -- implements backend.Backend.
type Backend struct {
	cfg    Config
	host   *url.URL
	client *gl.Client
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend for cfg.Host.
func New(cfg Config) (*Backend, error) {
	const errCtx = "creating gitlab backend"

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	cfg.Host = strings.TrimSuffix(cfg.Host, "/")

	host, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("%s: host: %w", errCtx, err)
	}

	if host.Scheme == "" || host.Host == "" {
		return nil, fmt.Errorf(
			"%s: host %q must be an absolute url",
			errCtx, cfg.Host,
		)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	b := &Backend{cfg: cfg, host: host}

	if cfg.Token == "" {
		return b, nil
	}

	if err := b.authenticate(cfg.Token); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return b, nil
}

func (b *Backend) authenticate(token string) error {
	const errCtx = "authenticating gitlab client"

	client, err := gl.NewOAuthClient(
		token,
		gl.WithBaseURL(b.cfg.Host),
		gl.WithHTTPClient(b.cfg.HTTPClient),
	)
	if err != nil {
		return fmt.Errorf("%s: new client: %w", errCtx, err)
	}

	b.client = client

	return nil
}

// RepositoryExists reports whether the project
// org/name exists. A 404 answer is not an error.
func (b *Backend) RepositoryExists(
	ctx context.Context,
	org string,
	name string,
) (bool, error) {
	const errCtx = "checking gitlab project"

	if b.client == nil {
		return false, fmt.Errorf(
			"%s: %w", errCtx, backend.ErrNotAuthenticated,
		)
	}

	project, resp, err := b.client.Projects.GetProject(
		org+"/"+name, nil, gl.WithContext(ctx),
	)
	if err != nil {
		if resp != nil &&
			resp.StatusCode == http.StatusNotFound {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return project.Name != "", nil
}

// CreateRepository creates a private project named
// name in the namespace org.
func (b *Backend) CreateRepository(
	ctx context.Context,
	org string,
	name string,
) error {
	const errCtx = "creating gitlab project"

	if b.client == nil {
		return fmt.Errorf(
			"%s: %w", errCtx, backend.ErrNotAuthenticated,
		)
	}

	ns, _, err := b.client.Namespaces.GetNamespace(
		org, gl.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf(
			"%s: namespace %q: %w", errCtx, org, err,
		)
	}

	created, resp, err := b.client.Projects.CreateProject(
		&gl.CreateProjectOptions{
			Name:        gl.Ptr(name),
			Path:        gl.Ptr(name),
			NamespaceID: gl.Ptr(ns.ID),
			Visibility:  gl.Ptr(gl.PrivateVisibility),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		slog.Warn(
			"gitlab refused project creation",
			"org", org,
			"name", name,
			"status", status,
		)

		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"created gitlab project",
		"url", created.WebURL,
	)

	return nil
}

// IdentityOf returns the reference of org/repo on
// the configured host.
func (b *Backend) IdentityOf(org, repo string) remote.Ref {
	return remote.Ref{
		Org:      org,
		Repo:     repo,
		Domain:   b.host.Host,
		Protocol: b.host.Scheme + "://",
	}
}

// Login runs the device flow against the instance
// and switches the backend to the new identity.
func (b *Backend) Login(ctx context.Context) error {
	const errCtx = "logging in to gitlab"

	if b.cfg.Store == nil {
		return fmt.Errorf(
			"%s: token store must be set", errCtx,
		)
	}

	dc, err := deviceauth.New(deviceauth.Config{
		ClientID: b.cfg.ClientID,
		Scopes:   DefaultScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: b.cfg.Host +
				"/oauth/authorize_device",
			TokenURL: b.cfg.Host + "/oauth/token",
		},
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

	slog.Info("authenticated with gitlab", "host", b.cfg.Host)

	return nil
}
