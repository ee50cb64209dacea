// Package detect implements the Project Auto-Detector (C5, §4.5): it
// inspects a project's working tree for marker files and produces a
// partial config plus a confidence score, rather than requiring every
// field to be spelled out in agentpod.toml by hand.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Result is what the detector could infer about a project.
type Result struct {
	Flavor             string
	Confidence         float64
	Messages           []string
	ProjectName        string
	ProjectDescription string
	StartCommand       string // the detected dev command, informational only; §4.6's container Command comes from lifecycle.init, not this
	Port               int
	PortLabel          string
	Lifecycle          map[string]string // setup, dev, start, build, test, lint, format
	Databases          []string
}

var monorepoMarkers = []string{"turbo.json", "lerna.json", "nx.json"}

var languageMarkers = map[string][]string{
	"js":     {"package.json"},
	"python": {"pyproject.toml", "requirements.txt"},
	"go":     {"go.mod"},
	"rust":   {"Cargo.toml"},
}

// frameworkMarker pairs a config-file marker with the dev-server port and
// label the framework defaults to (§4.5 "default dev-server ports per
// framework").
type frameworkMarker struct {
	Marker string
	Name   string
	Port   int
	Label  string
}

var frameworkMarkers = []frameworkMarker{
	{Marker: "next.config.js", Name: "Next.js", Port: 3000, Label: "Next.js Dev Server"},
	{Marker: "next.config.ts", Name: "Next.js", Port: 3000, Label: "Next.js Dev Server"},
	{Marker: "nuxt.config.js", Name: "Nuxt", Port: 3000, Label: "Nuxt Dev Server"},
	{Marker: "nuxt.config.ts", Name: "Nuxt", Port: 3000, Label: "Nuxt Dev Server"},
	{Marker: "remix.config.js", Name: "Remix", Port: 3000, Label: "Remix Dev Server"},
	{Marker: "svelte.config.js", Name: "Svelte", Port: 5173, Label: "SvelteKit Dev Server"},
	{Marker: "astro.config.mjs", Name: "Astro", Port: 4321, Label: "Astro Dev Server"},
	{Marker: "astro.config.ts", Name: "Astro", Port: 4321, Label: "Astro Dev Server"},
	// Vite isn't in §4.5's named framework list, but its presence is what
	// distinguishes a bare JS project from a fullstack one (§8 scenario 1
	// expects flavor=fullstack for package.json+vite.config.ts).
	{Marker: "vite.config.ts", Name: "Vite", Port: 5173, Label: "Vite Dev Server"},
	{Marker: "vite.config.js", Name: "Vite", Port: 5173, Label: "Vite Dev Server"},
}

var packageManagerMarkers = []string{"package-lock.json", "pnpm-lock.yaml", "yarn.lock", "poetry.lock", "Cargo.lock"}

var databaseKeywords = []string{"postgres", "mysql", "redis", "mongo"}

var pythonStartCommands = []struct {
	Marker  string
	Command string
	Port    int
}{
	{Marker: "pyproject.toml", Command: "python -m uvicorn main:app --reload --host 0.0.0.0", Port: 8000},
	{Marker: "requirements.txt", Command: "python main.py", Port: 8000},
}

// Detect walks dir for marker files and returns everything C5 can infer
// about it: flavor, confidence, project identity, lifecycle commands,
// databases and a default dev-server port.
func Detect(dir string) Result {
	languages := detectLanguages(dir)
	frameworks := detectFrameworks(dir)
	hasMonorepoMarker := anyExists(dir, monorepoMarkers)
	hasPackageManager := anyExists(dir, packageManagerMarkers)

	result := Result{Lifecycle: map[string]string{}}

	// §4.5 decision rule for environment.base, checked in priority order.
	switch {
	case hasMonorepoMarker || len(languages) >= 2:
		result.Flavor = "polyglot"
		if hasMonorepoMarker {
			result.Messages = append(result.Messages, "monorepo marker found, defaulting to polyglot flavor")
		} else {
			result.Messages = append(result.Messages, "multiple languages detected, defaulting to polyglot flavor")
		}
	case len(frameworks) > 0:
		result.Flavor = "fullstack"
		result.Messages = append(result.Messages, "framework config detected, defaulting to fullstack flavor")
	case contains(languages, "js"):
		result.Flavor = "js"
	case contains(languages, "python"):
		result.Flavor = "python"
	case contains(languages, "go"):
		result.Flavor = "go"
	case contains(languages, "rust"):
		result.Flavor = "rust"
	default:
		result.Flavor = "fullstack"
	}

	// Confidence: base 0.5 + 0.2 (any language) + 0.15 (any framework) +
	// 0.1 (any pkg mgr), capped at 1.0 (§4.5).
	confidence := 0.5
	if len(languages) > 0 {
		confidence += 0.2
	}
	if len(frameworks) > 0 {
		confidence += 0.15
	}
	if hasPackageManager {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	result.Confidence = confidence

	if len(frameworks) > 0 {
		fw := frameworks[0]
		result.Port = fw.Port
		result.PortLabel = fw.Label
	}

	if contains(languages, "js") {
		name, desc, scripts := readPackageJSON(dir)
		result.ProjectName = name
		result.ProjectDescription = desc
		for step, cmd := range scripts {
			result.Lifecycle[step] = cmd
		}
		if dev, ok := result.Lifecycle["dev"]; ok {
			result.StartCommand = dev
		} else if start, ok := result.Lifecycle["start"]; ok {
			result.StartCommand = start
		}
	} else {
		for _, c := range pythonStartCommands {
			if fileExists(filepath.Join(dir, c.Marker)) {
				result.StartCommand = c.Command
				if result.Port == 0 {
					result.Port = c.Port
				}
				break
			}
		}
		switch {
		case contains(languages, "go"):
			result.StartCommand = firstNonEmpty(result.StartCommand, "go run .")
			if result.Port == 0 {
				result.Port = 8080
			}
		case contains(languages, "rust"):
			result.StartCommand = firstNonEmpty(result.StartCommand, "cargo run")
			if result.Port == 0 {
				result.Port = 8080
			}
		}
	}

	result.Databases = detectDatabases(dir)

	return result
}

func detectLanguages(dir string) []string {
	var langs []string
	for _, lang := range []string{"js", "python", "go", "rust"} {
		if anyExists(dir, languageMarkers[lang]) {
			langs = append(langs, lang)
		}
	}
	return langs
}

func detectFrameworks(dir string) []frameworkMarker {
	var found []frameworkMarker
	for _, fw := range frameworkMarkers {
		if fileExists(filepath.Join(dir, fw.Marker)) {
			found = append(found, fw)
		}
	}
	return found
}

func detectDatabases(dir string) []string {
	var data []byte
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			data = b
			break
		}
	}
	if data == nil {
		return nil
	}
	lower := strings.ToLower(string(data))
	var found []string
	for _, kw := range databaseKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// packageJSON is the subset of fields the detector reads from package.json.
type packageJSON struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Scripts     map[string]string `json:"scripts"`
}

// scriptToLifecycle maps common package.json script names to lifecycle
// step names (§4.5 "lifecycle commands mapped from common script names").
// Every step except "start" is a field of C4's LifecycleSpec.
var scriptToLifecycle = map[string]string{
	"dev":         "dev",
	"start":       "start",
	"build":       "build",
	"test":        "test",
	"lint":        "lint",
	"format":      "format",
	"postinstall": "setup",
}

func readPackageJSON(dir string) (name, description string, lifecycle map[string]string) {
	lifecycle = map[string]string{}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", "", lifecycle
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", "", lifecycle
	}
	for script := range pkg.Scripts {
		if step, ok := scriptToLifecycle[script]; ok {
			lifecycle[step] = "npm run " + script
			if script == "start" {
				lifecycle[step] = "npm start"
			}
		}
	}
	return pkg.Name, pkg.Description, lifecycle
}

func anyExists(dir string, markers []string) bool {
	for _, m := range markers {
		if fileExists(filepath.Join(dir, m)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
