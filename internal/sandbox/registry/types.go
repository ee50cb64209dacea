// Package registry holds the built-in catalog of sandbox flavors, resource
// tiers and addons that the Container Spec Builder (C6) combines with a
// project's agentpod.toml to produce a runtime-ready spec (§4.6, §9).
package registry

// Flavor describes a base container image for one language/runtime
// ecosystem, adapted from the teacher's per-agent-type image catalog
// (internal/agent/registry) but keyed by project language instead of by
// coding-agent vendor.
type Flavor struct {
	ID          string
	Name        string
	Description string
	Image       string
	Tag         string
	WorkingDir  string
	DefaultPort int
}

// Tier caps the resources a sandbox may request, regardless of what a
// project's agentpod.toml asks for (§4.6).
type Tier struct {
	ID         string
	Name       string
	CPUCores   float64
	MemoryGB   float64
	StorageGB  float64
}

// Addon is an optional capability layered onto a sandbox: extra mounts,
// environment variables, or exposed ports (e.g. a VNC desktop, a database
// sidecar mount).
type Addon struct {
	ID          string
	Name        string
	Env         map[string]string
	Mounts      []MountTemplate
	Ports       []PortTemplate
	RequiredEnv []string
}

// MountTemplate is a bind mount whose Source may contain {placeholders}
// expanded against a sandbox's identity at spec-build time.
type MountTemplate struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PortTemplate is a port an addon wants exposed through the edge proxy.
type PortTemplate struct {
	Port     int
	Label    string
	Protocol string
}
