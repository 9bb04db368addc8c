// Package identity mints Google identity tokens for calls to the agent service.
package identity

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials/idtoken"
	"golang.org/x/oauth2"
)

// Options configures identity token minting.
type Options struct {
	Audience        string // service base URL
	CredentialsFile string // optional service account key; ADC when empty
}

// NewTokenSource returns a token source that mints ID tokens for the audience
// and reuses each token until it expires.
func NewTokenSource(ctx context.Context, opts Options) (oauth2.TokenSource, error) {
	audience := strings.TrimRight(opts.Audience, "/")
	if audience == "" {
		return nil, fmt.Errorf("identity token audience is required")
	}

	creds, err := idtoken.NewCredentials(&idtoken.Options{
		Audience:        audience,
		CredentialsFile: opts.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load identity credentials: %w", err)
	}

	return oauth2.ReuseTokenSource(nil, &providerSource{ctx: ctx, provider: creds}), nil
}

// providerSource adapts an auth.TokenProvider to oauth2.TokenSource.
type providerSource struct {
	ctx      context.Context
	provider auth.TokenProvider
}

func (s *providerSource) Token() (*oauth2.Token, error) {
	tok, err := s.provider.Token(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to mint identity token: %w", err)
	}

	tokenType := tok.Type
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &oauth2.Token{
		AccessToken: tok.Value,
		TokenType:   tokenType,
		Expiry:      tok.Expiry,
	}, nil
}

// NewStaticTokenSource returns a source that always yields value. Used for
// local agents behind a proxy that injects its own credentials, and tests.
func NewStaticTokenSource(value string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: value, TokenType: "Bearer"})
}
