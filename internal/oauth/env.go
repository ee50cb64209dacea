package oauth

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

// EnvProvider projects a user's vaulted OAuth token for one resource into
// environment variables for a launched sandbox container. Adapted from
// the teacher's internal/agent/credentials.EnvProvider, which scans the
// host process's own environment for API key patterns; this instead
// resolves a specific (user, resource) vault entry and never touches the
// host environment, since the secret material here always originates from
// the encrypted vault rather than operator-set host env vars.
type EnvProvider struct {
	manager *Manager
}

// NewEnvProvider creates an EnvProvider backed by m.
func NewEnvProvider(m *Manager) *EnvProvider {
	return &EnvProvider{manager: m}
}

// InjectedEnv returns the environment variables to set on a container so
// the in-container agent can call resourceURL as userID, keyed by
// envPrefix (e.g. "GITHUB" -> GITHUB_ACCESS_TOKEN). Returns
// apperrors.AuthRequired if no authorized session exists, so callers can
// surface a clear "connect this resource" prompt rather than a bare
// not-found error.
func (p *EnvProvider) InjectedEnv(ctx context.Context, userID, resourceURL, envPrefix string) (map[string]string, error) {
	session, err := p.manager.SessionFor(ctx, userID, resourceURL)
	if err != nil {
		return nil, apperrors.AuthRequired(fmt.Sprintf("no OAuth session for resource %s", resourceURL))
	}

	tok, err := p.manager.ActiveToken(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToUpper(envPrefix)
	env := map[string]string{
		prefix + "_ACCESS_TOKEN": tok.AccessToken,
	}
	if tok.RefreshToken != "" {
		env[prefix+"_REFRESH_TOKEN"] = tok.RefreshToken
	}
	return env, nil
}
