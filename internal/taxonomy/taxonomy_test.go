package taxonomy

import (
	"slices"
	"strings"
	"testing"
)

func TestAll(t *testing.T) {
	all := All()

	if len(all) != 15 {
		t.Fatalf("All() returned %d categories, want 15", len(all))
	}
	if all[0] != "Logística" {
		t.Errorf("first category = %q, want Logística", all[0])
	}
	if slices.Contains(all, Uncategorized) {
		t.Error("All() must not include the uncategorized sentinel")
	}

	// Returned slice is a copy
	all[0] = "mutated"
	if All()[0] != "Logística" {
		t.Error("All() returned shared backing array")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"canonical", "Logística", true},
		{"lowercase", "logística", true},
		{"whitespace", "  Amazon FBA y FBM  ", true},
		{"sentinel", "uncategorized", true},
		{"sentinel mixed case", "Uncategorized", true},
		{"unknown", "Criptomonedas", false},
		{"empty", "", false},
		{"partial match", "Logís", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.in); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got, ok := Normalize("amazon seller central")
	if !ok || got != "Amazon Seller Central" {
		t.Errorf("Normalize() = %q, %v; want canonical form", got, ok)
	}

	if _, ok := Normalize("nope"); ok {
		t.Error("Normalize() accepted unknown category")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "valid labels kept canonical",
			in:   []string{"logística", "Marketing y Publicidad"},
			want: []string{"Logística", "Marketing y Publicidad"},
		},
		{
			name: "unknown labels dropped",
			in:   []string{"Logística", "Blockchain"},
			want: []string{"Logística"},
		},
		{
			name: "duplicates removed",
			in:   []string{"Logística", "logística"},
			want: []string{"Logística"},
		},
		{
			name: "all invalid collapses to sentinel",
			in:   []string{"Blockchain", "NFTs"},
			want: []string{Uncategorized},
		},
		{
			name: "empty collapses to sentinel",
			in:   nil,
			want: []string{Uncategorized},
		},
		{
			name: "sentinel passes through",
			in:   []string{"UNCATEGORIZED"},
			want: []string{Uncategorized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Sanitize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPromptList(t *testing.T) {
	list := PromptList()

	for _, c := range All() {
		if !strings.Contains(list, "- "+c+": ") {
			t.Errorf("PromptList() missing entry for %q", c)
		}
	}
	if strings.Contains(list, Uncategorized) {
		t.Error("PromptList() must not offer the uncategorized sentinel")
	}
}

func TestDescription(t *testing.T) {
	if d := Description("Logística"); !strings.Contains(d, "fulfillment") {
		t.Errorf("Description(Logística) = %q", d)
	}
	if d := Description("unknown"); d != "" {
		t.Errorf("Description(unknown) = %q, want empty", d)
	}
}
