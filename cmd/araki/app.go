package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/credcache"
	"github.com/byte4ever/araki/remote"
	"github.com/byte4ever/araki/settings"
)

// app carries what every command needs once the
// settings are loaded.
type app struct {
	out    io.Writer
	errOut io.Writer

	configDir string
	workDir   string
	logLevel  string

	settings settings.Settings
	cache    *credcache.Cache

	// cloneURL picks the URL get clones from. Swapped
	// in tests.
	cloneURL func(remote.Ref) string

	// newBackend is swapped in tests.
	newBackend func(
		s settings.Settings,
		token string,
		store backend.TokenStore,
		out io.Writer,
	) (backend.Backend, error)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "araki",
		Short: "Manage versioned pixi lockspecs in git",
		PersistentPreRunE: func(
			cmd *cobra.Command, _ []string,
		) error {
			return a.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(
		&a.configDir, "config-dir", "",
		"configuration directory (default $ARAKI_CONFIG_DIR "+
			"or the user config dir)",
	)
	pf.StringVar(
		&a.logLevel, "log-level", "",
		"log level: debug, info, warn or error "+
			"(overrides the log_level setting)",
	)

	root.AddCommand(
		newAuthCmd(a),
		newGetCmd(a),
		newCheckoutCmd(a),
		newSaveCmd(a),
		newPushCmd(a),
		newRmCmd(a),
		newListCmd(a),
	)

	return root
}

// load resolves the settings, installs the logger and
// opens the token cache.
func (a *app) load() error {
	const errCtx = "loading configuration"

	dir := a.configDir
	if dir == "" {
		var err error

		dir, err = settings.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	s, err := settings.Load(dir, a.workDir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if a.logLevel != "" {
		s.LogLevel = a.logLevel
	}

	var level slog.Level

	if err := level.UnmarshalText(
		[]byte(s.LogLevel),
	); err != nil {
		return fmt.Errorf(
			"%s: log level: %w", errCtx, err,
		)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		a.errOut, &slog.HandlerOptions{Level: level},
	)))

	a.settings = s
	a.cache = credcache.New(dir)

	if a.newBackend == nil {
		a.newBackend = newBackend
	}

	if a.cloneURL == nil {
		a.cloneURL = remote.Ref.SSHURL
	}

	return nil
}

// backend builds the configured backend with the
// cached token, if any.
func (a *app) backend() (backend.Backend, error) {
	const errCtx = "preparing backend"

	token, _, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	be, err := a.newBackend(a.settings, token, a.cache, a.out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return be, nil
}

// loginContext bounds a login by the login_timeout
// setting. Zero means no bound.
func (a *app) loginContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if a.settings.LoginTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, a.settings.LoginTimeout)
}
