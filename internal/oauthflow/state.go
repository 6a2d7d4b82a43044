// Package oauthflow persists the result of an interactive OAuth grant.
package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/joshp123/solarcloud/internal/oauth"
)

// PersistResult reports persistence outcomes.
type PersistResult struct {
	StatePath string
	TempPath  string
	BlobSaved bool
}

// PersistOptions controls persistence behavior.
type PersistOptions struct {
	StatePathOverride string
	TempPath          string
	SkipBlob          bool
}

// StateFromToken builds persisted state from a freshly granted token.
func StateFromToken(decl oauth.Declaration, bootstrap oauth.Bootstrap, token *oauth2.Token) (oauth.State, error) {
	if token == nil || token.RefreshToken == "" {
		return oauth.State{}, fmt.Errorf("no refresh_token returned; check the redirect URL and app registration")
	}
	return oauth.State{
		SchemaVersion: oauth.SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  token.RefreshToken,
		Scope:         decl.Scope,
		AccessToken:   token.AccessToken,
		TokenType:     token.TokenType,
		Expiry:        token.Expiry,
	}, nil
}

// PersistState writes state to the declaration's state path, optionally to a temp
// copy, and to blob storage unless skipped.
func PersistState(ctx context.Context, decl oauth.Declaration, state oauth.State, blob oauth.BlobStore, opts PersistOptions) (PersistResult, error) {
	statePath := decl.StatePath
	if opts.StatePathOverride != "" {
		statePath = opts.StatePathOverride
	}
	if statePath == "" {
		return PersistResult{}, fmt.Errorf("state path missing")
	}
	if err := oauth.WriteState(statePath, state); err != nil {
		return PersistResult{}, err
	}
	result := PersistResult{StatePath: statePath}

	if opts.TempPath != "" {
		if err := oauth.WriteState(opts.TempPath, state); err != nil {
			return result, fmt.Errorf("write temp state: %w", err)
		}
		result.TempPath = opts.TempPath
	}

	if opts.SkipBlob || blob == nil {
		return result, nil
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return result, err
	}
	if err := blob.Save(ctx, decl.Provider, payload); err != nil {
		return result, err
	}
	result.BlobSaved = true
	return result, nil
}
