// Package proxy builds Traefik-style container labels so the edge proxy
// discovers and routes to sandbox containers without any direct coupling
// between the orchestrator and the proxy (§4.2). This is plain label-map
// construction over strings the standard library already handles well; no
// third-party routing library earns its keep here.
package proxy

import (
	"fmt"
	"sort"
	"strings"
)

// RouteKind distinguishes the four hostname schemes §4.2/§6 name: the
// fixed agent and homepage ports every sandbox exposes, addon ports, and
// user-declared ports.
type RouteKind string

const (
	KindAgent    RouteKind = "agent"
	KindHomepage RouteKind = "homepage"
	KindAddon    RouteKind = "addon"
	KindUser     RouteKind = "user"
)

// AgentPort and HomepagePort are the fixed ports every sandbox container
// exposes (§4.6, §6): the agent protocol and an optional homepage.
const (
	AgentPort    = 4096
	HomepagePort = 4000
)

// PortRoute describes one exposed port that needs a public hostname (§4.2).
type PortRoute struct {
	Kind     RouteKind
	Label    string // addon id for KindAddon, ignored otherwise
	Port     int
	Protocol string // "http" or "tcp", defaults to "http"
}

// Config carries everything the label builder needs to name routers and
// services uniquely per sandbox.
type Config struct {
	SandboxSlug    string
	BaseDomain     string
	TraefikNetwork string
	TLSEnabled     bool
	CertResolver   string
	Routes         []PortRoute
}

// BuildLabels returns the full label set to attach to a sandbox container.
// The same Config always yields the same keys and values, so callers can
// compare/diff between calls (§8: idempotent spec generation).
func BuildLabels(cfg Config) map[string]string {
	labels := map[string]string{
		"traefik.enable": "true",
	}

	for _, route := range cfg.Routes {
		proto := route.Protocol
		if proto == "" {
			proto = "http"
		}
		host := Hostname(cfg.SandboxSlug, route, cfg.BaseDomain)
		routerName := sanitize(fmt.Sprintf("%s-%s", cfg.SandboxSlug, routeSuffix(route)))

		switch proto {
		case "tcp":
			prefix := fmt.Sprintf("traefik.tcp.routers.%s", routerName)
			labels[prefix+".rule"] = fmt.Sprintf("HostSNI(`%s`)", host)
			labels[prefix+".entrypoints"] = "tcp"
			labels[fmt.Sprintf("traefik.tcp.services.%s.loadbalancer.server.port", routerName)] = fmt.Sprintf("%d", route.Port)
		default:
			prefix := fmt.Sprintf("traefik.http.routers.%s", routerName)
			labels[prefix+".rule"] = fmt.Sprintf("Host(`%s`)", host)
			labels[prefix+".entrypoints"] = "web"
			if cfg.TLSEnabled {
				labels[prefix+".entrypoints"] = "websecure"
				labels[prefix+".tls"] = "true"
				if cfg.CertResolver != "" {
					labels[prefix+".tls.certresolver"] = cfg.CertResolver
				}
			}
			labels[fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", routerName)] = fmt.Sprintf("%d", route.Port)
		}
	}

	if cfg.TraefikNetwork != "" {
		labels["traefik.docker.network"] = cfg.TraefikNetwork
	}

	return labels
}

// Hostname builds the public hostname for one routed port, per §4.2/§6's
// fixed per-kind scheme: `opencode-{slug}.{base}` for the agent port,
// `homepage-{slug}.{base}` for the homepage port, `<addon>-{slug}.{base}`
// for each enabled addon, and `<slug>-{port}.{base}` for user-declared
// ports.
func Hostname(slug string, route PortRoute, baseDomain string) string {
	switch route.Kind {
	case KindAgent:
		return fmt.Sprintf("opencode-%s.%s", slug, baseDomain)
	case KindHomepage:
		return fmt.Sprintf("homepage-%s.%s", slug, baseDomain)
	case KindAddon:
		return fmt.Sprintf("%s-%s.%s", route.Label, slug, baseDomain)
	default: // KindUser
		return fmt.Sprintf("%s-%d.%s", slug, route.Port, baseDomain)
	}
}

func routeSuffix(route PortRoute) string {
	switch route.Kind {
	case KindAgent:
		return "agent"
	case KindHomepage:
		return "homepage"
	case KindAddon:
		return route.Label
	default:
		return fmt.Sprintf("port-%d", route.Port)
	}
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// MetadataLabels returns the identifying labels attached to every
// sandbox-managed container (§4.7), independent of any routing concern.
func MetadataLabels(sandboxID, slug, userID, flavor, tier string, addons []string) map[string]string {
	labels := map[string]string{
		"agentpod.managed":    "true",
		"agentpod.sandbox.id": sandboxID,
		"agentpod.slug":       slug,
		"agentpod.user":       userID,
		"agentpod.flavor":     flavor,
		"agentpod.tier":       tier,
	}
	sorted := append([]string(nil), addons...)
	sort.Strings(sorted)
	for _, a := range sorted {
		labels[fmt.Sprintf("agentpod.addon.%s", a)] = "true"
	}
	return labels
}
