package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Token(ctx context.Context) (*auth.Token, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &auth.Token{Value: "id-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestProviderSource_ReusesUntilExpiry(t *testing.T) {
	provider := &countingProvider{}
	src := oauth2.ReuseTokenSource(nil, &providerSource{ctx: context.Background(), provider: provider})

	for i := 0; i < 3; i++ {
		tok, err := src.Token()
		require.NoError(t, err)
		assert.Equal(t, "id-token", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.Type())
	}
	assert.Equal(t, 1, provider.calls)
}

func TestProviderSource_Error(t *testing.T) {
	src := &providerSource{ctx: context.Background(), provider: &countingProvider{err: errors.New("metadata unavailable")}}

	_, err := src.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata unavailable")
}

func TestNewTokenSource_RequiresAudience(t *testing.T) {
	_, err := NewTokenSource(context.Background(), Options{})
	assert.Error(t, err)
}

func TestNewStaticTokenSource(t *testing.T) {
	tok, err := NewStaticTokenSource("local").Token()
	require.NoError(t, err)
	assert.Equal(t, "local", tok.AccessToken)
}
