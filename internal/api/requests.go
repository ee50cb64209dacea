package api

// CreateSandboxRequest is the wire body for POST /sandboxes.
type CreateSandboxRequest struct {
	DisplayName string            `json:"display_name" binding:"required"`
	Slug        string            `json:"slug"`
	RepoURL     string            `json:"repo_url"`
	RepoToken   string            `json:"repo_token"`
	ConfigTOML  string            `json:"config_toml"`
	Env         map[string]string `json:"env"`
}

// ExecRequest is the wire body for POST /sandboxes/:id/exec.
type ExecRequest struct {
	Argv []string `json:"argv" binding:"required"`
}

// OpenTerminalRequest is the wire body for POST /sandboxes/:id/terminals.
type OpenTerminalRequest struct {
	Shell string `json:"shell"`
}

// ResizeTerminalRequest is the wire body for POST /terminals/:id/resize.
type ResizeTerminalRequest struct {
	Cols uint `json:"cols" binding:"required"`
	Rows uint `json:"rows" binding:"required"`
}

// CloneRepoRequest is the wire body for POST /sandboxes/:id/git/clone.
type CloneRepoRequest struct {
	RemoteURL string `json:"remote_url" binding:"required"`
	Token     string `json:"token"`
}

// CommitRequest is the wire body for POST /sandboxes/:id/git/commit.
type CommitRequest struct {
	Message      string `json:"message" binding:"required"`
	AuthorName   string `json:"author_name" binding:"required"`
	AuthorEmail  string `json:"author_email" binding:"required"`
}

// CheckoutBranchRequest is the wire body for POST /sandboxes/:id/git/checkout.
type CheckoutBranchRequest struct {
	Branch string `json:"branch" binding:"required"`
	Create bool   `json:"create"`
}

// PostMessageRequest is the wire body for POST /chat/:session_id/messages.
type PostMessageRequest struct {
	Role  string             `json:"role" binding:"required"`
	Parts []MessagePartInput `json:"parts" binding:"required"`
}

// MessagePartInput is one content part of PostMessageRequest.
type MessagePartInput struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

// StartAuthorizationRequest is the wire body for POST /oauth/authorize.
type StartAuthorizationRequest struct {
	ResourceURL string `json:"resource_url" binding:"required"`
}
