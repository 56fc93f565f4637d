// internal/util/util_test.go
package util

import (
	"reflect"
	"testing"
)

// TestTruncateRunes verifies that truncation counts runes rather than bytes.
func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "abcdef", 3, "abc…"},
		{"multibyte", "héllo wörld", 4, "héll…"},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Fatalf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

// TestFormatBytes verifies that byte counts are rendered with binary units.
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024 * 1024, "2048.0 TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestFormatPercent verifies that percentages are clamped to 0-100 and rendered with one decimal.
func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(42.25); got != "42.2%" && got != "42.3%" {
		t.Errorf("FormatPercent(42.25) = %q", got)
	}
	if got := FormatPercent(-3); got != "0.0%" {
		t.Errorf("FormatPercent(-3) = %q", got)
	}
	if got := FormatPercent(140); got != "100.0%" {
		t.Errorf("FormatPercent(140) = %q", got)
	}
}

// TestSplitNonEmpty verifies that splitting drops blank and whitespace-only fields.
func TestSplitNonEmpty(t *testing.T) {
	got := SplitNonEmpty(" a, ,b ,, c", ",")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitNonEmpty = %#v, want %#v", got, want)
	}
	if got := SplitNonEmpty("", ","); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
}
