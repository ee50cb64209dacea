// Package oauth implements the OAuth Client for External Resources (C10,
// §4.10): RFC-9728 protected-resource discovery, PKCE authorization,
// dynamic client registration, token exchange/refresh, an encrypted token
// vault, and a soonest-expiry-first refresh scheduler.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

const wellKnownTimeout = 10 * time.Second

// ProtectedResourceMetadata is the RFC-9728 document published at
// <resource>/.well-known/oauth-protected-resource, naming the
// authorization server(s) that protect it.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// AuthServerMetadata is the RFC-8414 authorization server metadata
// document, covering the endpoints and capabilities needed to run the
// PKCE flow and optional dynamic client registration.
type AuthServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
}

// SupportsS256 reports whether S256 PKCE can be used: true when the server
// lists S256, or lists no challenge methods at all; plain is only used
// when the server lists methods and S256 is not among them (§4.10).
func (m AuthServerMetadata) SupportsS256() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return len(m.CodeChallengeMethodsSupported) == 0
}

// Discoverer fetches protected-resource and authorization-server metadata.
type Discoverer struct {
	httpClient *http.Client
}

// NewDiscoverer creates a Discoverer using a bounded-timeout HTTP client.
func NewDiscoverer() *Discoverer {
	return &Discoverer{httpClient: &http.Client{Timeout: wellKnownTimeout}}
}

// DiscoverResource fetches the protected-resource metadata for resourceURL.
func (d *Discoverer) DiscoverResource(ctx context.Context, resourceURL string) (*ProtectedResourceMetadata, error) {
	u, err := wellKnownURL(resourceURL, ".well-known/oauth-protected-resource")
	if err != nil {
		return nil, err
	}

	var meta ProtectedResourceMetadata
	if err := d.fetchJSON(ctx, u, &meta); err != nil {
		return nil, err
	}
	if len(meta.AuthorizationServers) == 0 {
		return nil, apperrors.Network("protected resource advertises no authorization servers", nil)
	}
	return &meta, nil
}

// DiscoverAuthServer fetches authorization-server metadata for issuer.
func (d *Discoverer) DiscoverAuthServer(ctx context.Context, issuer string) (*AuthServerMetadata, error) {
	u, err := wellKnownURL(issuer, ".well-known/oauth-authorization-server")
	if err != nil {
		return nil, err
	}

	var meta AuthServerMetadata
	if err := d.fetchJSON(ctx, u, &meta); err != nil {
		return nil, err
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, apperrors.Network("authorization server metadata missing required endpoints", nil)
	}
	return &meta, nil
}

func (d *Discoverer) fetchJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.Network("failed to build discovery request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return apperrors.Network(fmt.Sprintf("discovery request to %s failed", u), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Network(fmt.Sprintf("discovery at %s returned status %d", u, resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Network("failed to decode discovery response", err)
	}
	return nil
}

// wellKnownURL joins base with a well-known path, preserving base's own
// path component per RFC-8414 §3.1 insertion rules.
func wellKnownURL(base, wellKnown string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", apperrors.Invalid("resource_url", apperrors.ErrCodeInvalid, "malformed resource URL")
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	parsed.Path = "/" + wellKnown + path
	return parsed.String(), nil
}
