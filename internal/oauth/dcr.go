package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

// ClientRegistration is the RFC-7591 dynamic client registration request
// and response body (they share most fields).
type ClientRegistration struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// RegisterClient performs dynamic client registration against an
// authorization server that advertises a registration_endpoint (§4.10).
// Manager.StartAuthorization calls it only when the endpoint is advertised
// and otherwise fails; there is no pre-provisioned client id fallback.
func (d *Discoverer) RegisterClient(ctx context.Context, registrationEndpoint, clientName string, redirectURIs []string) (*ClientRegistration, error) {
	reqBody := ClientRegistration{
		ClientName:              clientName,
		RedirectURIs:            redirectURIs,
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none", // PKCE public client
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Runtime("failed to encode registration request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Network("failed to build registration request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Network("dynamic client registration request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, apperrors.Network("dynamic client registration rejected", nil)
	}

	var result ClientRegistration
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Network("failed to decode registration response", err)
	}
	if result.ClientID == "" {
		return nil, apperrors.Network("registration response missing client_id", nil)
	}
	return &result, nil
}
