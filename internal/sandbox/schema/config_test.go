package schema

import (
	"testing"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

func TestValidateRejectsEmptyProjectName(t *testing.T) {
	cfg := &Config{Project: &ProjectSpec{Name: ""}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty project name")
	}

	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("expected an *apperrors.AppError, got %T", err)
	}
	if appErr.Path != "project.name" {
		t.Errorf("expected path project.name, got %q", appErr.Path)
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := &Config{Project: &ProjectSpec{Name: "demo"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownFlavor(t *testing.T) {
	cfg := &Config{
		Project:     &ProjectSpec{Name: "demo"},
		Environment: &EnvironmentSpec{Base: "cobol"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown flavor")
	}
}

func TestValidatePartialDoesNotRequireProjectName(t *testing.T) {
	cfg := &Config{Ports: []PortEntry{{Port: 3000}}}
	if err := ValidatePartial(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergePreservesPrivatePortFlag(t *testing.T) {
	base := &Config{}
	patch := &Config{Ports: []PortEntry{
		{Port: 3000, Label: "API", Public: true},
		{Port: 9000, Label: "Debug", Public: false},
	}}

	merged := Merge(base, patch)

	if len(merged.Ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(merged.Ports))
	}
	if merged.Ports[1].Public {
		t.Error("expected port 9000 to remain private after merge")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("unknown_top_level_key = true\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}
