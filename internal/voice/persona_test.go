package voice

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPersona_DefaultInstruction(t *testing.T) {
	text, err := Persona{}.Instruction("")
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !strings.HasPrefix(text, "You are Aria, ") {
		t.Errorf("expected default assistant name, got %q", text[:40])
	}
	if strings.Count(text, "Ajit Fitness") != 2 {
		t.Error("expected business name in intro and greeting")
	}
}

func TestPersona_Overrides(t *testing.T) {
	text, err := Persona{AssistantName: "Nova", BusinessName: "Harbor Yoga"}.Instruction("")
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !strings.Contains(text, "You are Nova") || !strings.Contains(text, "Harbor Yoga") {
		t.Errorf("expected overrides applied, got %q", text)
	}
}

func TestLoadInstruction_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.tmpl")
	if err := os.WriteFile(path, []byte("Hello from {{.AssistantName}} at {{.BusinessName}}."), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}

	text, err := LoadInstruction(Persona{}, path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if text != "Hello from Aria at Ajit Fitness." {
		t.Errorf("unexpected instruction %q", text)
	}
}

func TestLoadInstruction_Errors(t *testing.T) {
	if _, err := LoadInstruction(Persona{}, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := (Persona{}).Instruction("{{.Unknown}}"); err == nil {
		t.Error("expected error for unknown field")
	}
}
