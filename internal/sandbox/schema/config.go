// Package schema defines the user-facing sandbox configuration file
// (agentpod.toml, C4, §3/§4.4): its types, defaulting rules, and
// TOML round-trip parsing via pelletier/go-toml/v2.
package schema

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

// closed sets from §Glossary / §3.
var validFlavors = map[string]bool{
	"bare": true, "js": true, "python": true, "go": true, "rust": true,
	"fullstack": true, "polyglot": true,
}

var validTiers = map[string]bool{
	"micro": true, "starter": true, "builder": true, "creator": true, "power": true,
}

// ProjectSpec identifies the project a sandbox was built from (§3).
type ProjectSpec struct {
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`
}

// EnvironmentSpec selects the base flavor and records the languages,
// package managers and free-form variables a project needs (§3).
type EnvironmentSpec struct {
	Base      string            `toml:"base,omitempty"`
	Languages []string          `toml:"languages,omitempty"`
	Packages  []string          `toml:"packages,omitempty"`
	Variables map[string]string `toml:"variables,omitempty"`
}

// ServicesSpec toggles in-container database sidecars, each contributing
// a well-known connection string to the container environment (§4.6).
type ServicesSpec struct {
	Postgres bool `toml:"postgres,omitempty"`
	MySQL    bool `toml:"mysql,omitempty"`
	Redis    bool `toml:"redis,omitempty"`
	MongoDB  bool `toml:"mongodb,omitempty"`
	SQLite   bool `toml:"sqlite,omitempty"`
}

// ResourceSpec lets a project request a tier and, within it, non-default
// resources bounded by the tier ceiling at spec-build time (§3, §4.6).
type ResourceSpec struct {
	Tier      string  `toml:"tier,omitempty"`
	CPUCores  float64 `toml:"cpu_cores,omitempty"`
	MemoryGB  float64 `toml:"memory_gb,omitempty"`
	StorageGB float64 `toml:"storage_gb,omitempty"`
}

// LifecycleSpec maps project lifecycle steps to shell commands (§3).
// Init becomes the container's entrypoint command when set (§4.6); the
// rest are informational, surfaced to tooling running inside the sandbox.
type LifecycleSpec struct {
	Init   string `toml:"init,omitempty"`
	Setup  string `toml:"setup,omitempty"`
	Dev    string `toml:"dev,omitempty"`
	Build  string `toml:"build,omitempty"`
	Test   string `toml:"test,omitempty"`
	Lint   string `toml:"lint,omitempty"`
	Format string `toml:"format,omitempty"`
}

// GitSpec configures the sandbox's git identity and default branch (§3).
type GitSpec struct {
	DefaultBranch string `toml:"default_branch,omitempty"`
	UserName      string `toml:"user_name,omitempty"`
	UserEmail     string `toml:"user_email,omitempty"`
	AutoCommit    bool   `toml:"auto_commit,omitempty"`
}

// AutoApproveSpec gates which categories of agent action run without a
// human confirming first; every field defaults false (§3 "booleans
// default false for destructive auto-approvals").
type AutoApproveSpec struct {
	Read    bool `toml:"read,omitempty"`
	Write   bool `toml:"write,omitempty"`
	Execute bool `toml:"execute,omitempty"`
}

// AgentSpec configures the coding agent that runs inside the sandbox (§3).
type AgentSpec struct {
	Provider    string          `toml:"provider,omitempty"`
	Model       string          `toml:"model,omitempty"`
	AutoApprove AutoApproveSpec `toml:"auto_approve,omitempty"`
	AgentsMD    string          `toml:"agents_md,omitempty"`
}

// PortEntry exposes one container port, public or private, under a label
// (§3, §8 scenario 3).
type PortEntry struct {
	Port     int    `toml:"port"`
	Label    string `toml:"label,omitempty"`
	Public   bool   `toml:"public,omitempty"`
	Protocol string `toml:"protocol,omitempty"` // http (default) or tcp
}

// MountEntry is a project-requested bind mount in addition to the
// project's own working directory.
type MountEntry struct {
	Source   string `toml:"source"`
	Target   string `toml:"target"`
	ReadOnly bool   `toml:"read_only,omitempty"`
}

// Config is the parsed contents of agentpod.toml. Every field is optional;
// the Project Auto-Detector (C5) and the Flavor/Tier registry fill in
// anything left unset (§4.4's defaulting rule).
type Config struct {
	Project     *ProjectSpec     `toml:"project,omitempty"`
	Environment *EnvironmentSpec `toml:"environment,omitempty"`
	Services    *ServicesSpec    `toml:"services,omitempty"`
	Ports       []PortEntry      `toml:"ports,omitempty"`
	Resources   *ResourceSpec    `toml:"resources,omitempty"`
	Addons      []string         `toml:"addons,omitempty"`
	Lifecycle   *LifecycleSpec   `toml:"lifecycle,omitempty"`
	Git         *GitSpec         `toml:"git,omitempty"`
	Agent       *AgentSpec       `toml:"agent,omitempty"`
	WorkingDir  string           `toml:"working_dir,omitempty"`
	Mounts      []MountEntry     `toml:"mounts,omitempty"`
}

// Parse decodes TOML bytes into a Config. Unknown keys are rejected so
// typos surface immediately rather than being silently ignored (§4.4).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, apperrors.Invalid("", apperrors.ErrCodeInvalid, fmt.Sprintf("invalid sandbox config: %v", err))
	}
	return &cfg, nil
}

// Serialize encodes a Config back to TOML, used after defaulting so the
// effective configuration can be persisted or displayed (§4.4).
func Serialize(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, apperrors.Runtime("failed to serialize sandbox config", err)
	}
	return data, nil
}

// Defaults applies §4.4's fill-in rules: `environment.base="js"`,
// `resources.tier="builder"`, `git.defaultBranch="main"`,
// `git.autoCommit=false`.
func Defaults() *Config {
	return &Config{
		Environment: &EnvironmentSpec{Base: "js"},
		Resources:   &ResourceSpec{Tier: "builder"},
		Git:         &GitSpec{DefaultBranch: "main", AutoCommit: false},
	}
}

// Validate fully validates cfg against §3's schema invariants, the way a
// declarative config file submitted as the source of truth must be
// validated (§4.4 "parses, validates... returns {valid, config, errors,
// warnings}"). It returns the first violation found; warnings (§4.4) are
// returned separately by Warnings.
func Validate(cfg *Config) error {
	if cfg.Project == nil || cfg.Project.Name == "" {
		return apperrors.Invalid("project.name", apperrors.ErrCodeInvalid, "project name is required")
	}
	if cfg.Environment != nil && cfg.Environment.Base != "" && !validFlavors[cfg.Environment.Base] {
		return apperrors.Invalid("environment.base", apperrors.ErrCodeInvalid, fmt.Sprintf("unknown flavor %q", cfg.Environment.Base))
	}
	if cfg.Resources != nil && cfg.Resources.Tier != "" && !validTiers[cfg.Resources.Tier] {
		return apperrors.Invalid("resources.tier", apperrors.ErrCodeInvalid, fmt.Sprintf("unknown tier %q", cfg.Resources.Tier))
	}
	return ValidatePartial(cfg)
}

// Warnings returns the non-fatal §4.4 warnings for cfg: missing
// description, `power` tier chosen, GPU addon on `starter`/`builder`,
// missing `lifecycle.dev`, and `autoApprove.execute=true`.
func Warnings(cfg *Config) []string {
	var warnings []string
	if cfg.Project == nil || cfg.Project.Description == "" {
		warnings = append(warnings, "project description is missing")
	}
	tier := ""
	if cfg.Resources != nil {
		tier = cfg.Resources.Tier
	}
	if tier == "power" {
		warnings = append(warnings, "power tier chosen, this sandbox will reserve significant host resources")
	}
	if hasAddon(cfg.Addons, "gpu") && (tier == "starter" || tier == "builder") {
		warnings = append(warnings, "gpu addon requested on a tier that typically has no GPU allocation")
	}
	if cfg.Lifecycle == nil || cfg.Lifecycle.Dev == "" {
		warnings = append(warnings, "lifecycle.dev is not set, the sandbox will not auto-start a dev server")
	}
	if cfg.Agent != nil && cfg.Agent.AutoApprove.Execute {
		warnings = append(warnings, "agent.auto_approve.execute is enabled, commands will run without confirmation")
	}
	return warnings
}

func hasAddon(addons []string, id string) bool {
	for _, a := range addons {
		if a == id {
			return true
		}
	}
	return false
}

// ValidatePartial checks a Config meant to be merged as a PATCH overlay:
// every field that IS set must be independently valid, even though most
// fields are absent (§4.4 "partial overlay validation"). Unlike Validate,
// it does not require project.name to be set.
func ValidatePartial(cfg *Config) error {
	for _, p := range cfg.Ports {
		if p.Port <= 0 || p.Port > 65535 {
			return apperrors.Invalid("ports", apperrors.ErrCodeInvalid, fmt.Sprintf("invalid port %d", p.Port))
		}
		if p.Protocol != "" && p.Protocol != "http" && p.Protocol != "tcp" {
			return apperrors.Invalid("ports.protocol", apperrors.ErrCodeInvalid, fmt.Sprintf("unsupported protocol %q", p.Protocol))
		}
	}
	for _, m := range cfg.Mounts {
		if m.Source == "" || m.Target == "" {
			return apperrors.Invalid("mounts", apperrors.ErrCodeInvalid, "mount requires both source and target")
		}
	}
	if cfg.Resources != nil {
		if cfg.Resources.CPUCores < 0 || cfg.Resources.MemoryGB < 0 || cfg.Resources.StorageGB < 0 {
			return apperrors.Invalid("resources", apperrors.ErrCodeInvalid, "resource overrides must be non-negative")
		}
	}
	return nil
}

// Merge overlays non-zero fields of patch onto base, returning a new
// Config. Scalar fields replace; maps merge key-wise; slices replace
// wholesale (§4.4 overlay semantics).
func Merge(base, patch *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	merged := *base

	if patch.Project != nil {
		merged.Project = patch.Project
	}
	if patch.Environment != nil {
		merged.Environment = mergeEnvironment(merged.Environment, patch.Environment)
	}
	if patch.Services != nil {
		merged.Services = patch.Services
	}
	if len(patch.Ports) > 0 {
		merged.Ports = patch.Ports
	}
	if patch.Resources != nil {
		merged.Resources = patch.Resources
	}
	if len(patch.Addons) > 0 {
		merged.Addons = patch.Addons
	}
	if patch.Lifecycle != nil {
		merged.Lifecycle = patch.Lifecycle
	}
	if patch.Git != nil {
		merged.Git = patch.Git
	}
	if patch.Agent != nil {
		merged.Agent = patch.Agent
	}
	if patch.WorkingDir != "" {
		merged.WorkingDir = patch.WorkingDir
	}
	if len(patch.Mounts) > 0 {
		merged.Mounts = patch.Mounts
	}
	return &merged
}

func mergeEnvironment(base, patch *EnvironmentSpec) *EnvironmentSpec {
	if base == nil {
		return patch
	}
	merged := *base
	if patch.Base != "" {
		merged.Base = patch.Base
	}
	if len(patch.Languages) > 0 {
		merged.Languages = patch.Languages
	}
	if len(patch.Packages) > 0 {
		merged.Packages = patch.Packages
	}
	if len(patch.Variables) > 0 {
		if merged.Variables == nil {
			merged.Variables = make(map[string]string, len(patch.Variables))
		} else {
			varCopy := make(map[string]string, len(merged.Variables))
			for k, v := range merged.Variables {
				varCopy[k] = v
			}
			merged.Variables = varCopy
		}
		for k, v := range patch.Variables {
			merged.Variables[k] = v
		}
	}
	return &merged
}
