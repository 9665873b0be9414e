package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/byte4ever/araki/backend"
)

// GrantType is the grant_type sent while polling the
// token endpoint.
const GrantType = "urn:ietf:params:oauth:grant-type:device_code"

const (
	defaultInterval = 5 * time.Second
	slowDownStep    = 5 * time.Second
	maxBodySize     = 1 << 20
)

// Provider error codes that drive the poll loop.
const (
	codeAuthorizationPending = "authorization_pending"
	codeSlowDown             = "slow_down"
	codeExpiredToken         = "expired_token"
	codeAccessDenied         = "access_denied"
)

var (
	// ErrExpiredToken ends a login whose device code
	// expired before the operator approved it.
	ErrExpiredToken = errors.New(
		"the device code has expired, run `araki auth login` again",
	)
	// ErrAccessDenied ends a login the operator
	// declined.
	ErrAccessDenied = errors.New("login cancelled by user")
	// ErrMissingAccessToken is returned when a
	// successful token response has no access_token.
	ErrMissingAccessToken = errors.New(
		"token response without access_token",
	)
)

// ProviderError is an error code the poll loop does
// not know how to handle.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "provider error: " + e.Code
	}

	return "provider error: " + e.Code + ": " + e.Description
}

// Session is one pending device authorization.
type Session struct {
	VerificationURI string
	UserCode        string
	DeviceCode      string
	Interval        time.Duration
}

// WaitFunc suspends the poll loop for d or until ctx
// is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Config holds the provider settings of a device
// authorization client.
type Config struct {
	// ClientID is the OAuth application identifier.
	ClientID string
	// Scopes requested with the device code.
	Scopes []string
	// Endpoint must set DeviceAuthURL and TokenURL.
	Endpoint oauth2.Endpoint
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Out receives the operator instructions.
	// Defaults to os.Stdout.
	Out io.Writer
	// Wait defaults to Sleep.
	Wait WaitFunc
}

// Client drives device authorization logins.
type Client struct {
	oauth *oauth2.Config
	http  *http.Client
	out   io.Writer
	wait  WaitFunc
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	const errCtx = "creating device auth client"

	if cfg.ClientID == "" {
		return nil, fmt.Errorf(
			"%s: client id must be set", errCtx,
		)
	}

	if cfg.Endpoint.DeviceAuthURL == "" {
		return nil, fmt.Errorf(
			"%s: device auth url must be set", errCtx,
		)
	}

	if cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf(
			"%s: token url must be set", errCtx,
		)
	}

	cl := &Client{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   cfg.Scopes,
			Endpoint: cfg.Endpoint,
		},
		http: cfg.HTTPClient,
		out:  cfg.Out,
		wait: cfg.Wait,
	}

	if cl.http == nil {
		cl.http = http.DefaultClient
	}

	if cl.out == nil {
		cl.out = os.Stdout
	}

	if cl.wait == nil {
		cl.wait = Sleep
	}

	return cl, nil
}

// Login runs the whole grant and stores the obtained
// token.
func (c *Client) Login(
	ctx context.Context,
	store backend.TokenStore,
) (string, error) {
	const errCtx = "logging in with device code"

	sess, err := c.RequestDeviceCode(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := c.Present(sess); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	token, err := c.Poll(ctx, sess, store)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return token, nil
}

// RequestDeviceCode asks the provider for a device
// and user code. Any non-success status is fatal.
func (c *Client) RequestDeviceCode(
	ctx context.Context,
) (*Session, error) {
	const errCtx = "requesting device code"

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	resp, err := c.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Session{
		VerificationURI: resp.VerificationURI,
		UserCode:        resp.UserCode,
		DeviceCode:      resp.DeviceCode,
		Interval:        interval,
	}, nil
}

// Present prints the verification URI and user code
// for the operator.
func (c *Client) Present(sess *Session) error {
	const errCtx = "presenting device code"

	if _, err := fmt.Fprintf(
		c.out,
		"Please visit: %s\nand enter code: %s\n",
		sess.VerificationURI,
		sess.UserCode,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Poll queries the token endpoint until the provider
// grants a token or ends the session.
func (c *Client) Poll(
	ctx context.Context,
	sess *Session,
	store backend.TokenStore,
) (string, error) {
	const errCtx = "polling for token"

	for {
		resp, err := c.requestToken(ctx, sess.DeviceCode)
		if err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}

		code, failed := resp["error"]
		if !failed || code == nil {
			return c.accept(resp, store)
		}

		var delay time.Duration

		switch fmt.Sprint(code) {
		case codeAuthorizationPending:
			delay = sess.Interval
		case codeSlowDown:
			delay = sess.Interval + slowDownStep
		case codeExpiredToken:
			return "", fmt.Errorf(
				"%s: %w", errCtx, ErrExpiredToken,
			)
		case codeAccessDenied:
			return "", fmt.Errorf(
				"%s: %w", errCtx, ErrAccessDenied,
			)
		default:
			desc, _ := resp["error_description"].(string)

			return "", fmt.Errorf(
				"%s: %w", errCtx, &ProviderError{
					Code:        fmt.Sprint(code),
					Description: desc,
				},
			)
		}

		slog.Debug(
			"waiting for device authorization",
			"code", code,
			"delay", delay,
		)

		if err := c.wait(ctx, delay); err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}
	}
}

func (c *Client) accept(
	resp map[string]any,
	store backend.TokenStore,
) (string, error) {
	const errCtx = "accepting token"

	token, _ := resp["access_token"].(string)
	if token == "" {
		return "", fmt.Errorf(
			"%s: %w", errCtx, ErrMissingAccessToken,
		)
	}

	if err := store.Store(token); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return token, nil
}

// requestToken posts one token request and decodes
// the answer as a free-form map. Providers answer
// pending states with 4xx and a JSON body, so the
// status code alone is not checked.
func (c *Client) requestToken(
	ctx context.Context,
	deviceCode string,
) (map[string]any, error) {
	const errCtx = "requesting token"

	form := url.Values{
		"client_id":   {c.oauth.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {GrantType},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.oauth.Endpoint.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: build request: %w", errCtx, err,
		)
	}

	req.Header.Set(
		"Content-Type", "application/x-www-form-urlencoded",
	)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: send request: %w", errCtx, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(
		io.LimitReader(resp.Body, maxBodySize),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: read response: %w", errCtx, err,
		)
	}

	var out map[string]any

	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf(
			"%s: decode response (status %d): %w",
			errCtx, resp.StatusCode, err,
		)
	}

	if out == nil {
		return nil, fmt.Errorf(
			"%s: empty response (status %d)",
			errCtx, resp.StatusCode,
		)
	}

	return out, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	tm := time.NewTimer(d)
	defer tm.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}
