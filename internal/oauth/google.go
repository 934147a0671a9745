package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrInvalidProviderToken is returned when the identity provider
// rejects a token or reports no verified email for it.
var ErrInvalidProviderToken = errors.New("invalid provider token")

// Identity is a provider-verified assertion of who the caller is
type Identity struct {
	Email   string
	Name    string
	Subject string
}

// GoogleVerifier validates Google-issued ID tokens against the
// provider's token introspection endpoint and drives the
// authorization-code flow for browser clients.
type GoogleVerifier struct {
	tokenInfoURL string
	httpClient   *http.Client
	config       *oauth2.Config
}

// NewGoogleVerifier creates a Google federation adapter
func NewGoogleVerifier(clientID, clientSecret, tokenInfoURL string) *GoogleVerifier {
	return &GoogleVerifier{
		tokenInfoURL: tokenInfoURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

// Configured reports whether the code flow can be used
func (g *GoogleVerifier) Configured() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

type tokenInfoResponse struct {
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Subject       string `json:"sub"`
	Error         string `json:"error,omitempty"`
	ErrorDesc     string `json:"error_description,omitempty"`
}

// Verify checks an ID token with the provider. Any provider-reported
// error, a non-200 response, or a missing verified email is Invalid.
func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, ErrInvalidProviderToken
	}

	endpoint := fmt.Sprintf("%s?id_token=%s", g.tokenInfoURL, url.QueryEscape(idToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	var info tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, ErrInvalidProviderToken
	}

	if resp.StatusCode != http.StatusOK || info.Error != "" || info.ErrorDesc != "" {
		return nil, ErrInvalidProviderToken
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return nil, ErrInvalidProviderToken
	}

	return &Identity{
		Email:   info.Email,
		Name:    info.Name,
		Subject: info.Subject,
	}, nil
}

// AuthCodeURL builds the provider consent URL for the code flow
func (g *GoogleVerifier) AuthCodeURL(state, redirectURL string) string {
	config := *g.config
	config.RedirectURL = redirectURL
	return config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange swaps an authorization code for the provider's ID token
func (g *GoogleVerifier) Exchange(ctx context.Context, code, redirectURL string) (string, error) {
	config := *g.config
	config.RedirectURL = redirectURL

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return "", ErrInvalidProviderToken
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", ErrInvalidProviderToken
	}
	return idToken, nil
}
