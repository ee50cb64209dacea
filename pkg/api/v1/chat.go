package v1

import "time"

// ChatSessionStatus tracks the lifecycle of an agent conversation (§3).
type ChatSessionStatus string

const (
	ChatSessionActive    ChatSessionStatus = "active"
	ChatSessionPaused    ChatSessionStatus = "paused"
	ChatSessionCompleted ChatSessionStatus = "completed"
	ChatSessionError     ChatSessionStatus = "error"
)

// ChatSession is one conversation between a user and the in-container agent.
type ChatSession struct {
	ID         string            `json:"id"`
	SandboxID  string            `json:"sandbox_id"`
	AgentID    string            `json:"agent_id"`
	Status     ChatSessionStatus `json:"status"`
	WorkingDir string            `json:"working_dir"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// MessageRole distinguishes the author of a ChatMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ContentPart is one part of a structured message body (text/image/file, §3).
type ContentPart struct {
	Kind string `json:"kind"` // text, image, file
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

// ChatMessage is one append-only message in a ChatSession. Ids are
// monotonically increasing per session (§3, §8).
type ChatMessage struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Role      MessageRole   `json:"role"`
	Parts     []ContentPart `json:"parts"`
	ToolCalls []string      `json:"tool_call_ids,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ToolCallStatus is the lifecycle of one tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCall records one tool invocation made by the agent during a message.
// Output may arrive strictly after the call is registered (§3).
type ToolCall struct {
	ID        string                 `json:"id"`
	MessageID int64                  `json:"message_id"`
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Status    ToolCallStatus         `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

const (
	// MaxMessageBodyBytes bounds a single chat message body (§5).
	MaxMessageBodyBytes = 1 << 20 // 1 MiB
	// MaxMessagesPerSession is the eviction threshold (§5).
	MaxMessagesPerSession = 1000
	// EvictionBatchSize is how many oldest messages are dropped on overflow.
	EvictionBatchSize = 100
)
