package specbuilder

import (
	"testing"

	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/proxy"
	"github.com/agentpod/agentpod/internal/sandbox/detect"
	"github.com/agentpod/agentpod/internal/sandbox/registry"
	"github.com/agentpod/agentpod/internal/sandbox/schema"
)

func newTestRegistry() *registry.Registry {
	reg := registry.NewRegistry(logger.Default())
	reg.LoadDefaults()
	return reg
}

func TestBuildAlwaysRoutesAgentAndHomepage(t *testing.T) {
	out, err := Build(Input{
		SandboxID:     "sb-1",
		Slug:          "demo",
		UserID:        "user-1",
		WorkspaceHost: "/tmp/demo",
		Detected:      detect.Result{Flavor: "bare"},
		BaseDomain:    "pods.example.com",
	}, newTestRegistry())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var hasAgent, hasHomepage bool
	for _, r := range out.ResolvedPorts {
		if r.Kind == proxy.KindAgent && r.Port == 4096 {
			hasAgent = true
		}
		if r.Kind == proxy.KindHomepage && r.Port == 4000 {
			hasHomepage = true
		}
	}
	if !hasAgent || !hasHomepage {
		t.Fatalf("expected fixed agent/homepage routes, got %+v", out.ResolvedPorts)
	}
}

func TestBuildFiltersPrivatePorts(t *testing.T) {
	cfg := &schema.Config{
		Project: &schema.ProjectSpec{Name: "demo"},
		Ports: []schema.PortEntry{
			{Port: 3000, Label: "API", Public: true},
			{Port: 9000, Label: "Debug", Public: false},
		},
	}

	out, err := Build(Input{
		SandboxID:     "sb-1",
		Slug:          "demo",
		UserID:        "user-1",
		WorkspaceHost: "/tmp/demo",
		Config:        cfg,
		Detected:      detect.Result{Flavor: "bare"},
		BaseDomain:    "pods.example.com",
	}, newTestRegistry())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	has3000, has9000 := false, false
	for _, r := range out.ResolvedPorts {
		if r.Port == 3000 {
			has3000 = true
		}
		if r.Port == 9000 {
			has9000 = true
		}
	}
	if !has3000 {
		t.Error("expected public port 3000 to be routed")
	}
	if has9000 {
		t.Error("did not expect private port 9000 to be routed")
	}

	if _, ok := out.ProxyLabels["traefik.http.routers.demo-port-3000.rule"]; !ok {
		t.Errorf("expected a router label for public port 3000, got %+v", out.ProxyLabels)
	}
	if _, ok := out.ProxyLabels["traefik.http.routers.demo-port-9000.rule"]; ok {
		t.Error("did not expect a router label for private port 9000")
	}
}

func TestBuildIdentityEnvWinsOverUserEnv(t *testing.T) {
	cfg := &schema.Config{Project: &schema.ProjectSpec{Name: "demo"}}

	out, err := Build(Input{
		SandboxID:     "sb-1",
		Slug:          "demo",
		UserID:        "user-1",
		WorkspaceHost: "/tmp/demo",
		Config:        cfg,
		UserEnv: map[string]string{
			"SANDBOX_ID":   "attacker-supplied",
			"USER_ID":      "attacker-supplied",
			"PROJECT_NAME": "attacker-supplied",
		},
		Detected:   detect.Result{Flavor: "bare", ProjectName: "demo"},
		BaseDomain: "pods.example.com",
	}, newTestRegistry())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	env := envMap(out.Spec.Env)
	if env["SANDBOX_ID"] != "sb-1" {
		t.Errorf("expected SANDBOX_ID to be identity-derived, got %q", env["SANDBOX_ID"])
	}
	if env["USER_ID"] != "user-1" {
		t.Errorf("expected USER_ID to be identity-derived, got %q", env["USER_ID"])
	}
}

func TestBuildUsesLifecycleInitAsCommand(t *testing.T) {
	cfg := &schema.Config{
		Project:   &schema.ProjectSpec{Name: "demo"},
		Lifecycle: &schema.LifecycleSpec{Init: "npm install && npm run dev"},
	}

	out, err := Build(Input{
		SandboxID:     "sb-1",
		Slug:          "demo",
		UserID:        "user-1",
		WorkspaceHost: "/tmp/demo",
		Config:        cfg,
		Detected:      detect.Result{Flavor: "js", StartCommand: "npm start"},
		BaseDomain:    "pods.example.com",
	}, newTestRegistry())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{"/bin/sh", "-c", "npm install && npm run dev"}
	if len(out.Spec.Cmd) != 3 || out.Spec.Cmd[2] != want[2] {
		t.Errorf("expected command from lifecycle.init, got %+v", out.Spec.Cmd)
	}
}

func TestBuildRejectsUnknownFlavor(t *testing.T) {
	cfg := &schema.Config{
		Project:     &schema.ProjectSpec{Name: "demo"},
		Environment: &schema.EnvironmentSpec{Base: "cobol"},
	}

	_, err := Build(Input{
		SandboxID:     "sb-1",
		Slug:          "demo",
		WorkspaceHost: "/tmp/demo",
		Config:        cfg,
		BaseDomain:    "pods.example.com",
	}, newTestRegistry())
	if err == nil {
		t.Fatal("expected error for unknown flavor")
	}
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				m[e[:i]] = e[i+1:]
				break
			}
		}
	}
	return m
}
