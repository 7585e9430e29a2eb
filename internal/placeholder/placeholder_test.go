// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package placeholder

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"no placeholders", "plain text", []string{}},
		{"single", "Hello {{name}}", []string{"name"}},
		{"order of first occurrence", "Hi {{name}}, re {{topic}}", []string{"name", "topic"}},
		{"duplicates collapse", "{{a}} {{b}} {{a}}", []string{"a", "b"}},
		{"trimmed", "{{  spaced  }}", []string{"spaced"}},
		{"trimmed duplicates collapse", "{{x}} {{ x }}", []string{"x"}},
		{"empty body ignored", "{{}} {{   }} {{k}}", []string{"k"}},
		{"unclosed ignored", "{{open and {{closed}}", []string{"closed"}},
		{"single braces ignored", "{notakey} {{key}}", []string{"key"}},
		{"nested picks inner", "{{ {{inner}} }}", []string{"inner"}},
		{"triple braces", "{{{a}}}", []string{"a"}},
		{"multiline body", "{{a\nb}}", []string{"a\nb"}},
		{"unicode", "{{名前}} and {{émoji}}", []string{"名前", "émoji"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Extract(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !Contains("Hi {{ name }}", "name") {
		t.Error("Contains should match trimmed placeholder")
	}
	if Contains("Hi {{names}}", "name") {
		t.Error("Contains should not match a different key")
	}
}

func TestHasDelimiter(t *testing.T) {
	for _, s := range []string{"{", "}", "a{b", "{{x}}"} {
		if !HasDelimiter(s) {
			t.Errorf("HasDelimiter(%q) = false, want true", s)
		}
	}
	if HasDelimiter("plain_key") {
		t.Error("HasDelimiter(plain_key) = true, want false")
	}
}

func TestSubstitute(t *testing.T) {
	values := map[string]string{
		"name":  "Ada",
		"loop":  "{{name}}",
		"empty": "",
	}
	lookup := func(key string) string { return values[key] }

	tests := []struct {
		name string
		text string
		want string
	}{
		{"static", "Hello {{name}}", "Hello Ada"},
		{"repeated", "{{name}} and {{ name }}", "Ada and Ada"},
		{"unknown renders empty", "x{{missing}}y", "xy"},
		{"non-recursive", "v={{loop}}", "v={{name}}"},
		{"empty body untouched", "{{}} {{name}}", "{{}} Ada"},
		{"empty value", "[{{empty}}]", "[]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Substitute(tc.text, lookup); got != tc.want {
				t.Errorf("Substitute(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestReplaceKey(t *testing.T) {
	got, n := ReplaceKey("Hi {{name}}, {{ name }} and {{other}}", "name", "who")
	if got != "Hi {{who}}, {{ who }} and {{other}}" {
		t.Errorf("ReplaceKey text = %q", got)
	}
	if n != 2 {
		t.Errorf("ReplaceKey count = %d, want 2", n)
	}

	same, n := ReplaceKey("no match", "name", "who")
	if same != "no match" || n != 0 {
		t.Errorf("ReplaceKey on missing key = (%q, %d)", same, n)
	}
}

func TestReplaceKey_RoundTrip(t *testing.T) {
	original := "Hi {{name}}, re {{ topic }} and {{name }}"
	forward, _ := ReplaceKey(original, "name", "who")
	back, _ := ReplaceKey(forward, "who", "name")
	if back != original {
		t.Errorf("round trip = %q, want %q", back, original)
	}
}

func TestStripKey(t *testing.T) {
	got, n := StripKey("Hi {{name}}, re {{topic}}", "topic")
	if got != "Hi {{name}}, re " {
		t.Errorf("StripKey text = %q", got)
	}
	if n != 1 {
		t.Errorf("StripKey count = %d, want 1", n)
	}
}
