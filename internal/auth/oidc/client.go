package oidc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const discoveryPath = "/.well-known/openid-configuration"

// Provider is the part of an OIDC provider the handler talks to.
type Provider interface {
	AuthCodeURL(state string, pkce bool) (authURL, codeVerifier string, err error)
	Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// Client represents an OIDC client with PKCE support
type Client struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
}

// NewClient creates a new OIDC client with discovery support. discoveryURL
// may be the issuer or the full discovery document URL.
func NewClient(ctx context.Context, discoveryURL, clientID, clientSecret, redirectURL string, scopes []string) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}
	ctx = oidc.ClientContext(ctx, httpClient)

	issuer := strings.TrimSuffix(strings.TrimSuffix(discoveryURL, discoveryPath), "/")
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	return &Client{
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		httpClient:   httpClient,
	}, nil
}

// AuthCodeURL builds the authorization URL. With pkce it also returns the
// code verifier the callback must present.
func (c *Client) AuthCodeURL(state string, pkce bool) (string, string, error) {
	if !pkce {
		return c.oauth2Config.AuthCodeURL(state), "", nil
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	authURL := c.oauth2Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(codeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return authURL, codeVerifier, nil
}

// Exchange trades the authorization code for tokens and verifies the ID token
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	ctx = oidc.ClientContext(ctx, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := c.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("no id_token in token response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}

	return &TokenResponse{
		AccessToken: token.AccessToken,
		Subject:     idToken.Subject,
		Claims:      claims,
	}, nil
}

// UserInfo fetches user information from the userinfo endpoint
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ctx = oidc.ClientContext(ctx, c.httpClient)
	userInfo, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	var claims map[string]any
	if err := userInfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract user info claims: %w", err)
	}
	return claims, nil
}

// generateCodeVerifier generates a PKCE code verifier
func generateCodeVerifier() (string, error) {
	return randomString(32)
}

// generateCodeChallenge derives the S256 code challenge from the verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenResponse is the verified outcome of a code exchange. Tokens other
// than the access token are not kept; the session only records identity.
type TokenResponse struct {
	AccessToken string
	Subject     string
	Claims      map[string]any
}
