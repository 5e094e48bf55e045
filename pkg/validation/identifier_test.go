package validation

import (
	"strings"
	"testing"
)

func TestValidateMetricKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		// Valid keys
		{"simple", "tokens_in", false},
		{"single char", "n", false},
		{"with digits", "p99_latency", false},
		{"dotted", "cost.total", false},
		{"hyphenated", "cache-hit-rate", false},
		{"uppercase", "UNKNOWN_METRIC", false},
		{"max length", "a" + strings.Repeat("b", 127), false},

		// Invalid keys
		{"empty", "", true},
		{"leading digit", "9lives", true},
		{"leading underscore", "_private", true},
		{"space", "tokens in", true},
		{"flux injection", `tokens") |> yield(`, true},
		{"path traversal", "../etc/passwd", true},
		{"too long", "a" + strings.Repeat("b", 128), true},
		{"newline", "tokens\nin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetricKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetricKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMetricKeys(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		if err := ValidateMetricKeys([]string{"tokens_in", "tokens_out", "duration_seconds"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("reports every invalid key", func(t *testing.T) {
		err := ValidateMetricKeys([]string{"ok", "bad key", "also bad"})
		if err == nil {
			t.Fatal("expected error for invalid keys")
		}
		msg := err.Error()
		if !strings.Contains(msg, "bad key") || !strings.Contains(msg, "also bad") {
			t.Errorf("error should list all invalid keys, got: %s", msg)
		}
	})

	t.Run("empty slice", func(t *testing.T) {
		if err := ValidateMetricKeys(nil); err != nil {
			t.Errorf("unexpected error for empty slice: %v", err)
		}
	})
}

func TestValidateModelName(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"openai style", "gpt-4o-mini", false},
		{"dated", "claude-3-5-sonnet-20241022", false},
		{"ollama tag", "llama3.1:70b", false},
		{"namespaced", "meta-llama/Llama-3-8B", false},
		{"empty", "", true},
		{"space", "gpt 4", true},
		{"quote", `gpt"4`, true},
		{"too long", strings.Repeat("x", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelName(tt.model)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModelName(%q) error = %v, wantErr %v", tt.model, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFrameworkLabel(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"simple", "aider", false},
		{"hyphenated", "claude-code", false},
		{"versioned", "openhands-0.14", false},
		{"empty", "", true},
		{"space", "open hands", true},
		{"slash", "open/hands", true},
		{"too long", strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrameworkLabel(tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFrameworkLabel(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFrameworkLabel(t *testing.T) {
	t.Run("lowercases and trims", func(t *testing.T) {
		got, err := SanitizeFrameworkLabel("  Aider  ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "aider" {
			t.Errorf("got %q, want %q", got, "aider")
		}
	})

	t.Run("rejects invalid after trim", func(t *testing.T) {
		if _, err := SanitizeFrameworkLabel("   "); err == nil {
			t.Error("expected error for whitespace-only label")
		}
	})
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"timestamped", "aider_v0.14_20250812_153045", false},
		{"uuid style", "0b1f0a52-77f2-4f6e-9b53-1c4f3a9d0e21", false},
		{"empty", "", true},
		{"traversal", "../../run", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

