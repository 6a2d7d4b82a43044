package isolarcloud

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/joshp123/solarcloud/internal/oauth"
	"github.com/joshp123/solarcloud/internal/rate"
)

const (
	tokenPath        = "/openapi/apiManage/token"
	refreshTokenPath = "/openapi/apiManage/refreshToken"
)

// OAuthDeclaration describes the iSolarCloud authorization-code grant. The gateway
// grants a fixed permission set, so no scope is declared.
func OAuthDeclaration(cfg Config) oauth.Declaration {
	return oauth.Declaration{
		Provider:     pluginID,
		Flow:         oauth.FlowAuthCode,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     strings.TrimSuffix(cfg.BaseURL, "/") + tokenPath,
		StatePath:    cfg.StatePath,
	}
}

// AuthorizeURL is the consent page a user opens to grant this application access.
func AuthorizeURL(cfg Config, redirectURI string) (string, error) {
	if cfg.AuthorizeURL == "" {
		return "", fmt.Errorf("no consent page for region %q", cfg.Region)
	}
	if cfg.ApplicationID == "" {
		return "", fmt.Errorf("isolarcloud application_id is required for authorization")
	}
	query := url.Values{}
	query.Set("cloudId", cfg.CloudID)
	query.Set("applicationId", cfg.ApplicationID)
	query.Set("redirectUrl", redirectURI)
	// The consent page is a hash-routed SPA; the query belongs to the fragment.
	return cfg.AuthorizeURL + "?" + query.Encode(), nil
}

// TokenClient talks to the gateway token endpoints. Its requests carry the app key
// and access key but no bearer token.
type TokenClient struct {
	client *Client
}

func NewTokenClient(cfg Config, opts ...Option) *TokenClient {
	transport := NewHTTPTransport(cfg, nil, rate.Declaration{})
	return &TokenClient{client: NewClient(transport, opts...)}
}

func newTokenClientWithTransport(transport Transport, opts ...Option) *TokenClient {
	return &TokenClient{client: NewClient(transport, opts...)}
}

// Exchange trades an authorization code from the consent redirect for tokens.
func (t *TokenClient) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	resp, err := t.client.call(ctx, tokenPath, map[string]any{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return parseToken(resp)
}

// Refresh implements oauth.Refresher against the gateway's refresh endpoint.
func (t *TokenClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is empty")
	}
	resp, err := t.client.call(ctx, refreshTokenPath, map[string]any{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return parseToken(resp)
}

var _ oauth.Refresher = (*TokenClient)(nil)

func parseToken(resp response) (*oauth2.Token, error) {
	access := parseString(resp.data["access_token"])
	if access == "" {
		return nil, resp.fail("token response has no access_token")
	}
	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: parseString(resp.data["refresh_token"]),
		TokenType:    parseString(resp.data["token_type"]),
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if seconds, ok := parseFloat(resp.data["expires_in"]); ok && seconds > 0 {
		token.Expiry = time.Now().Add(time.Duration(seconds) * time.Second)
	}
	return token, nil
}
