package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/oauth/store"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// RefreshSkew is how far ahead of expiry a token is proactively refreshed
// (§5: "refresh when expires_at - now < 60s").
const RefreshSkew = 60 * time.Second

// pendingAuth holds the server-side state of an authorization attempt
// between StartAuthorization and HandleCallback, keyed by PKCE state.
// This never touches the store because it carries a plaintext client
// secret (when DCR returns a confidential client). An entry is removed
// when a callback with its state arrives, and pendingAuthTTL is checked
// at that point; an entry whose callback never arrives stays in the map.
type pendingAuth struct {
	userID       string
	resourceURL  string
	pkce         *PKCE
	authEndpoint string
	tokenEndpoint string
	clientID     string
	clientSecret string
	createdAt    time.Time
}

const pendingAuthTTL = 10 * time.Minute

// Manager orchestrates RFC-9728 discovery, PKCE authorization, dynamic
// client registration, token exchange/refresh and the encrypted vault
// (C10, §4.10).
type Manager struct {
	store       store.Store
	vault       *Vault
	discoverer  *Discoverer
	redirectURL string
	clientName  string
	logger      *logger.Logger

	refreshQueue *RefreshQueue

	mu      sync.Mutex
	pending map[string]*pendingAuth // PKCE state -> pending attempt
}

// Config configures a Manager.
type Config struct {
	RedirectURL string
	ClientName  string
}

// NewManager creates a Manager.
func NewManager(st store.Store, vault *Vault, cfg Config, log *logger.Logger) *Manager {
	if cfg.ClientName == "" {
		cfg.ClientName = "agentpod"
	}
	return &Manager{
		store:        st,
		vault:        vault,
		discoverer:   NewDiscoverer(),
		redirectURL:  cfg.RedirectURL,
		clientName:   cfg.ClientName,
		logger:       log.WithFields(zap.String("component", "oauth.manager")),
		refreshQueue: NewRefreshQueue(),
		pending:      make(map[string]*pendingAuth),
	}
}

// StartAuthorization begins the PKCE flow for userID against resourceURL,
// discovering the protected resource and its authorization server,
// registering a client dynamically when advertised, and returning the URL
// the user should be redirected to (§4.10).
func (m *Manager) StartAuthorization(ctx context.Context, userID, resourceURL string) (string, error) {
	resMeta, err := m.discoverer.DiscoverResource(ctx, resourceURL)
	if err != nil {
		return "", err
	}

	asMeta, err := m.discoverer.DiscoverAuthServer(ctx, resMeta.AuthorizationServers[0])
	if err != nil {
		return "", err
	}

	var clientID, clientSecret string
	if asMeta.RegistrationEndpoint != "" {
		reg, err := m.discoverer.RegisterClient(ctx, asMeta.RegistrationEndpoint, m.clientName, []string{m.redirectURL})
		if err != nil {
			return "", err
		}
		clientID, clientSecret = reg.ClientID, reg.ClientSecret
	} else {
		return "", apperrors.Network("authorization server does not support dynamic client registration and no static client is configured", nil)
	}

	pkce, err := NewPKCE(asMeta.SupportsS256())
	if err != nil {
		return "", apperrors.Runtime("failed to generate PKCE parameters", err)
	}

	now := time.Now()
	session := &v1.OAuthSession{
		ID:               pkce.State,
		UserID:           userID,
		ResourceURL:      resourceURL,
		AuthorizationURL: asMeta.AuthorizationEndpoint,
		Status:           v1.OAuthPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.pending[pkce.State] = &pendingAuth{
		userID:        userID,
		resourceURL:   resourceURL,
		pkce:          pkce,
		authEndpoint:  asMeta.AuthorizationEndpoint,
		tokenEndpoint: asMeta.TokenEndpoint,
		clientID:      clientID,
		clientSecret:  clientSecret,
		createdAt:     now,
	}
	m.mu.Unlock()

	cfg := m.oauth2Config(clientID, clientSecret, asMeta.AuthorizationEndpoint, asMeta.TokenEndpoint)
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method),
		oauth2.SetAuthURLParam("resource", resourceURL),
	}
	return cfg.AuthCodeURL(pkce.State, opts...), nil
}

// HandleCallback completes the PKCE flow: it exchanges the authorization
// code for tokens, seals them into the vault, marks the session authorized
// and schedules its first proactive refresh (§4.10).
func (m *Manager) HandleCallback(ctx context.Context, state, code string) (*v1.OAuthSession, error) {
	m.mu.Lock()
	pa, ok := m.pending[state]
	if ok {
		delete(m.pending, state)
	}
	m.mu.Unlock()

	if !ok {
		return nil, apperrors.Invalid("state", apperrors.ErrCodeInvalid, "unknown or expired authorization state")
	}
	if time.Since(pa.createdAt) > pendingAuthTTL {
		return nil, apperrors.Invalid("state", apperrors.ErrCodeInvalid, "authorization attempt expired")
	}

	cfg := m.oauth2Config(pa.clientID, pa.clientSecret, pa.authEndpoint, pa.tokenEndpoint)
	token, err := cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", pa.pkce.Verifier))
	if err != nil {
		return nil, apperrors.Auth("token exchange failed", err)
	}

	session, err := m.store.GetSession(ctx, state)
	if err != nil {
		return nil, err
	}

	if err := m.storeToken(ctx, session, token, pa.clientID, pa.clientSecret); err != nil {
		return nil, err
	}

	return session, nil
}

// storeToken seals token into the vault, updates session to authorized
// and schedules the next refresh.
func (m *Manager) storeToken(ctx context.Context, session *v1.OAuthSession, token *oauth2.Token, clientID, clientSecret string) error {
	mat := &TokenMaterial{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	ciphertext, err := m.vault.Seal(mat)
	if err != nil {
		return err
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}

	if err := m.store.PutVaultEntry(ctx, &store.VaultEntry{
		SessionID:    session.ID,
		Ciphertext:   ciphertext,
		ExpiresAt:    expiresAt,
		RefreshToken: token.RefreshToken != "",
	}); err != nil {
		return err
	}

	session.Status = v1.OAuthAuthorized
	session.ExpiresAt = &expiresAt
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return err
	}

	if token.RefreshToken != "" {
		m.refreshQueue.Upsert(session.ID, expiresAt.Add(-RefreshSkew))
	}
	return nil
}

// SessionFor returns the authorized session for (userID, resourceURL), if any.
func (m *Manager) SessionFor(ctx context.Context, userID, resourceURL string) (*v1.OAuthSession, error) {
	sessions, err := m.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.ResourceURL == resourceURL && s.Status == v1.OAuthAuthorized {
			return s, nil
		}
	}
	return nil, apperrors.NotFound("oauth_session", fmt.Sprintf("%s:%s", userID, resourceURL))
}

// ActiveToken returns sessionID's current token material, refreshing first
// if it is within RefreshSkew of expiry (§4.10).
func (m *Manager) ActiveToken(ctx context.Context, sessionID string) (*TokenMaterial, error) {
	entry, err := m.store.GetVaultEntry(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if entry.RefreshToken && time.Until(entry.ExpiresAt) < RefreshSkew {
		if err := m.refreshSession(ctx, sessionID); err != nil {
			return nil, err
		}
		entry, err = m.store.GetVaultEntry(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	return m.vault.Open(entry.Ciphertext)
}

// refreshSession exchanges a refresh token for a new access token.
func (m *Manager) refreshSession(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	entry, err := m.store.GetVaultEntry(ctx, sessionID)
	if err != nil {
		return err
	}
	mat, err := m.vault.Open(entry.Ciphertext)
	if err != nil {
		return err
	}
	if mat.RefreshToken == "" {
		return apperrors.AuthRequired("session has no refresh token, re-authorization required")
	}

	resMeta, err := m.discoverer.DiscoverResource(ctx, session.ResourceURL)
	if err != nil {
		return err
	}
	asMeta, err := m.discoverer.DiscoverAuthServer(ctx, resMeta.AuthorizationServers[0])
	if err != nil {
		return err
	}

	cfg := m.oauth2Config(mat.ClientID, mat.ClientSecret, asMeta.AuthorizationEndpoint, asMeta.TokenEndpoint)
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: mat.RefreshToken})
	token, err := src.Token()
	if err != nil {
		m.EvictSession(ctx, sessionID)
		return apperrors.Auth("token refresh failed, session evicted", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = mat.RefreshToken
	}

	return m.storeToken(ctx, session, token, mat.ClientID, mat.ClientSecret)
}

// EvictSession removes a session's vault entry and marks it expired.
// refreshSession calls it when a refresh attempt fails; nothing in this
// package observes 401/invalid_token responses from a protected resource,
// so such a response does not evict a session by itself.
func (m *Manager) EvictSession(ctx context.Context, sessionID string) {
	m.refreshQueue.Remove(sessionID)
	_ = m.store.DeleteVaultEntry(ctx, sessionID)

	if session, err := m.store.GetSession(ctx, sessionID); err == nil {
		session.Status = v1.OAuthExpired
		session.UpdatedAt = time.Now()
		_ = m.store.UpdateSession(ctx, session)
	}
}

// RunRefreshLoop polls the refresh queue until ctx is cancelled, refreshing
// every session due within the next tick (§4.10, §5).
func (m *Manager) RunRefreshLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entry := range m.refreshQueue.DueBefore(time.Now().Add(tick)) {
				if err := m.refreshSession(ctx, entry.SessionID); err != nil {
					m.logger.Warn("scheduled token refresh failed", zap.String("session_id", entry.SessionID), zap.Error(err))
				}
			}
		}
	}
}

func (m *Manager) oauth2Config(clientID, clientSecret, authEndpoint, tokenEndpoint string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authEndpoint,
			TokenURL: tokenEndpoint,
		},
		RedirectURL: m.redirectURL,
	}
}
