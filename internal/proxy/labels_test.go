package proxy

import "testing"

func TestHostnamePerRouteKind(t *testing.T) {
	cases := []struct {
		route    PortRoute
		expected string
	}{
		{PortRoute{Kind: KindAgent, Port: AgentPort}, "opencode-demo.pods.example.com"},
		{PortRoute{Kind: KindHomepage, Port: HomepagePort}, "homepage-demo.pods.example.com"},
		{PortRoute{Kind: KindAddon, Label: "code-server", Port: 8080}, "code-server-demo.pods.example.com"},
		{PortRoute{Kind: KindUser, Port: 3000}, "demo-3000.pods.example.com"},
	}

	for _, c := range cases {
		got := Hostname("demo", c.route, "pods.example.com")
		if got != c.expected {
			t.Errorf("Hostname(%+v) = %q, want %q", c.route, got, c.expected)
		}
	}
}

func TestBuildLabelsOnlyRoutesGivenPorts(t *testing.T) {
	labels := BuildLabels(Config{
		SandboxSlug: "demo",
		BaseDomain:  "pods.example.com",
		Routes: []PortRoute{
			{Kind: KindAgent, Port: AgentPort, Protocol: "tcp"},
			{Kind: KindHomepage, Port: HomepagePort, Protocol: "http"},
			{Kind: KindUser, Port: 3000, Protocol: "http"},
		},
	})

	if labels["traefik.http.routers.demo-port-3000.rule"] != "Host(`demo-3000.pods.example.com`)" {
		t.Errorf("missing or wrong user-port router rule, got %+v", labels)
	}
	if _, ok := labels["traefik.http.routers.demo-port-9000.rule"]; ok {
		t.Error("did not expect a router for an undeclared port")
	}
	if labels["traefik.tcp.routers.demo-agent.rule"] != "HostSNI(`opencode-demo.pods.example.com`)" {
		t.Errorf("missing or wrong agent router rule, got %+v", labels)
	}
}

func TestMetadataLabelsSetsAddonLabels(t *testing.T) {
	labels := MetadataLabels("sb-1", "demo", "user-1", "fullstack", "builder", []string{"gui", "code-server"})

	if labels["agentpod.addon.code-server"] != "true" || labels["agentpod.addon.gui"] != "true" {
		t.Errorf("expected both addon labels set, got %+v", labels)
	}
	if labels["agentpod.flavor"] != "fullstack" {
		t.Errorf("expected flavor label fullstack, got %q", labels["agentpod.flavor"])
	}
}
