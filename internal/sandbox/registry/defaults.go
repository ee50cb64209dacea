package registry

// DefaultFlavors returns the built-in base-image catalog: the closed
// flavor set {bare, js, python, go, rust, fullstack, polyglot} (§Glossary,
// §4.5 decision rule), each resolving to an image reference via
// `agentpod-{flavor}` (the registry/owner/version prefix, when configured,
// is applied by the Container Spec Builder).
func DefaultFlavors() []*Flavor {
	return []*Flavor{
		{ID: "bare", Name: "Bare", Description: "Minimal Debian image with common CLI tooling.", Image: "agentpod-bare", Tag: "latest", WorkingDir: "/home/workspace", DefaultPort: 8080},
		{ID: "js", Name: "JavaScript/TypeScript", Description: "Node.js 20 LTS with npm, pnpm and yarn preinstalled.", Image: "agentpod-js", Tag: "20", WorkingDir: "/home/workspace", DefaultPort: 3000},
		{ID: "python", Name: "Python", Description: "Python 3.12 with pip, poetry and uv preinstalled.", Image: "agentpod-python", Tag: "3.12", WorkingDir: "/home/workspace", DefaultPort: 8000},
		{ID: "go", Name: "Go", Description: "Go toolchain with common build tooling.", Image: "agentpod-go", Tag: "latest", WorkingDir: "/home/workspace", DefaultPort: 8080},
		{ID: "rust", Name: "Rust", Description: "Rust stable with cargo preinstalled.", Image: "agentpod-rust", Tag: "latest", WorkingDir: "/home/workspace", DefaultPort: 8080},
		{ID: "fullstack", Name: "Fullstack", Description: "Node.js plus a framework toolchain (Next.js, Nuxt, Remix, SvelteKit, Astro, Vite).", Image: "agentpod-fullstack", Tag: "latest", WorkingDir: "/home/workspace", DefaultPort: 3000},
		{ID: "polyglot", Name: "Polyglot", Description: "Monorepo image bundling Node.js, Python, Go and Rust toolchains.", Image: "agentpod-polyglot", Tag: "latest", WorkingDir: "/home/workspace", DefaultPort: 8080},
	}
}

// DefaultTiers returns the built-in resource-tier catalog (§3, §4.6).
func DefaultTiers() []*Tier {
	return []*Tier{
		{ID: "micro", Name: "Micro", CPUCores: 0.5, MemoryGB: 1, StorageGB: 5},
		{ID: "starter", Name: "Starter", CPUCores: 1.0, MemoryGB: 2, StorageGB: 10},
		{ID: "builder", Name: "Builder", CPUCores: 2.0, MemoryGB: 4, StorageGB: 20},
		{ID: "creator", Name: "Creator", CPUCores: 4.0, MemoryGB: 8, StorageGB: 40},
		{ID: "power", Name: "Power", CPUCores: 8.0, MemoryGB: 16, StorageGB: 80},
	}
}

// DefaultAddons returns the built-in addon catalog (§3, §4.6, §9).
func DefaultAddons() []*Addon {
	return []*Addon{
		{
			ID:   "code-server",
			Name: "code-server",
			Env:  map[string]string{"CODE_SERVER_ENABLED": "true"},
			Ports: []PortTemplate{
				{Port: 8080, Label: "code-server", Protocol: "http"},
			},
		},
		{
			ID:   "gui",
			Name: "GUI Desktop (noVNC)",
			Env:  map[string]string{"GUI_ENABLED": "true"},
			Ports: []PortTemplate{
				{Port: 6080, Label: "gui", Protocol: "http"},
			},
		},
		{
			ID:          "gpu",
			Name:        "GPU Passthrough",
			Env:         map[string]string{"GPU_ENABLED": "true"},
			RequiredEnv: []string{},
		},
		{
			ID:          "databases",
			Name:        "Database Sidecars",
			RequiredEnv: []string{},
		},
		{
			ID:          "cloud",
			Name:        "Cloud Provider CLIs",
			RequiredEnv: []string{},
		},
	}
}
