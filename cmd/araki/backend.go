package main

import (
	"fmt"
	"io"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/backend/bitbucket"
	"github.com/byte4ever/araki/backend/github"
	"github.com/byte4ever/araki/backend/gitlab"
	"github.com/byte4ever/araki/settings"
)

// newBackend creates the backend named by the backend
// setting.
//
// Pattern: Factory -- selects the hosting provider at
// runtime.
func newBackend(
	s settings.Settings,
	token string,
	store backend.TokenStore,
	out io.Writer,
) (backend.Backend, error) {
	const errCtx = "creating backend"

	switch s.Backend {
	case "github":
		be, err := github.New(github.Config{
			Token:    token,
			APIURL:   s.GitHub.APIURL,
			ClientID: s.GitHub.ClientID,
			Store:    store,
			Out:      out,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return be, nil

	case "gitlab":
		be, err := gitlab.New(gitlab.Config{
			Host:     s.GitLab.Host,
			Token:    token,
			ClientID: s.GitLab.ClientID,
			Store:    store,
			Out:      out,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return be, nil

	case "bitbucket":
		be, err := bitbucket.New(bitbucket.Config{
			APIURL:  s.Bitbucket.APIURL,
			SSHHost: s.Bitbucket.SSHHost,
			Token:   token,
			Store:   store,
			Out:     out,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return be, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown backend %q", errCtx, s.Backend,
		)
	}
}
