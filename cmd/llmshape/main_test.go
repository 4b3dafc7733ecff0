package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/llmshape/internal/home"
	"github.com/jackzampolin/llmshape/internal/presets"
)

func TestPetsText(t *testing.T) {
	t.Run("sample when no args", func(t *testing.T) {
		got, err := petsText(strings.NewReader(""), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != presets.SamplePetText() {
			t.Errorf("expected sample text, got %q", got)
		}
	})

	t.Run("joins args", func(t *testing.T) {
		got, err := petsText(nil, []string{"Rex", "is", "a", "dog"})
		if err != nil {
			t.Fatal(err)
		}
		if got != "Rex is a dog" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("reads stdin", func(t *testing.T) {
		got, err := petsText(strings.NewReader("  Mochi the cat\n"), []string{"-"})
		if err != nil {
			t.Fatal(err)
		}
		if got != "Mochi the cat" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty stdin", func(t *testing.T) {
		if _, err := petsText(strings.NewReader("\n"), []string{"-"}); err == nil {
			t.Error("expected error for empty stdin")
		}
	})
}

func TestReadPrompt(t *testing.T) {
	if _, err := readPrompt(nil, "  "); err == nil {
		t.Error("expected error for blank prompt")
	}
	got, err := readPrompt(strings.NewReader("from stdin"), "-")
	if err != nil || got != "from stdin" {
		t.Errorf("readPrompt(-) = %q, %v", got, err)
	}
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	person := `{"title":"person","type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`
	if err := os.WriteFile(filepath.Join(h.SchemasPath(), "person.json"), []byte(person), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("registered name", func(t *testing.T) {
		s, err := loadSchema(h, "city_list")
		if err != nil {
			t.Fatal(err)
		}
		if s != presets.CitySchema {
			t.Error("expected the registered city schema")
		}
	})

	t.Run("name in home schemas dir", func(t *testing.T) {
		s, err := loadSchema(h, "person")
		if err != nil {
			t.Fatal(err)
		}
		if s.Name != "person" {
			t.Errorf("Name = %q, want person", s.Name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadSchema(h, "nope"); err == nil {
			t.Error("expected error for missing schema")
		}
	})
}

func TestMaskKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"${OPENAI_API_KEY}", "${OPENAI_API_KEY}"},
		{"abc", "****"},
		{"sk-abcdef1234", "****1234"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.in); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
