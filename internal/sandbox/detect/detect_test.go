package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
		t.Fatalf("writeFile %s: %v", name, err)
	}
}

func TestDetectViteProjectResolvesFullstack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"demo","scripts":{"dev":"vite","build":"vite build"}}`)
	writeFile(t, dir, "vite.config.ts", "export default {}")

	result := Detect(dir)

	if result.Flavor != "fullstack" {
		t.Errorf("expected flavor fullstack, got %s", result.Flavor)
	}
	if result.Confidence < 0.75 {
		t.Errorf("expected confidence >= 0.75, got %f", result.Confidence)
	}
	if result.Port != 5173 {
		t.Errorf("expected detected port 5173, got %d", result.Port)
	}
	if result.Lifecycle["dev"] != "npm run dev" {
		t.Errorf("expected lifecycle.dev %q, got %q", "npm run dev", result.Lifecycle["dev"])
	}
	if result.ProjectName != "demo" {
		t.Errorf("expected project name demo, got %q", result.ProjectName)
	}
}

func TestDetectMonorepoResolvesPolyglot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "turbo.json", "{}")
	writeFile(t, dir, "package.json", `{"name":"mono"}`)
	writeFile(t, dir, "go.mod", "module mono\n")

	result := Detect(dir)

	if result.Flavor != "polyglot" {
		t.Errorf("expected flavor polyglot, got %s", result.Flavor)
	}
}

func TestDetectMultiLanguageWithoutMonorepoMarkerResolvesPolyglot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"multi"}`)
	writeFile(t, dir, "go.mod", "module multi\n")

	result := Detect(dir)

	if result.Flavor != "polyglot" {
		t.Errorf("expected flavor polyglot for 2+ languages, got %s", result.Flavor)
	}
}

func TestDetectSingleLanguageFallbacks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module solo\n")

	result := Detect(dir)

	if result.Flavor != "go" {
		t.Errorf("expected flavor go, got %s", result.Flavor)
	}
	if result.Port != 8080 {
		t.Errorf("expected default go port 8080, got %d", result.Port)
	}
}

func TestDetectEmptyDirDefaultsFullstackWithBaseConfidence(t *testing.T) {
	dir := t.TempDir()

	result := Detect(dir)

	if result.Flavor != "fullstack" {
		t.Errorf("expected default flavor fullstack, got %s", result.Flavor)
	}
	if result.Confidence != 0.5 {
		t.Errorf("expected base confidence 0.5, got %f", result.Confidence)
	}
}
