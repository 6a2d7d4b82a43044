package oauth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

const FlowAuthCode = "auth_code"

// Declaration defines the OAuth contract a plugin must provide.
type Declaration struct {
	Provider     string
	Flow         string
	AuthorizeURL string
	TokenURL     string
	// Scope may be empty for providers that grant a fixed permission set.
	Scope     string
	StatePath string
}

func (d Declaration) Validate() error {
	if d.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if d.TokenURL == "" {
		return fmt.Errorf("tokenURL is required")
	}
	if !statePathValid(d.StatePath) {
		return fmt.Errorf("statePath must be absolute")
	}
	return nil
}

// OAuth2Config builds the standard client config for the declaration.
func (d Declaration) OAuth2Config(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  d.AuthorizeURL,
			TokenURL: d.TokenURL,
		},
		RedirectURL: redirectURL,
		Scopes:      strings.Fields(d.Scope),
	}
}
