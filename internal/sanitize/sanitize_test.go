package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"plain", "Invalid email or password", "Invalid email or password"},
		{"markup", `<b>User</b> already <a href="javascript:alert(1)">exists</a>`, "User already exists"},
		{"script", `Denied<script>alert(1)</script>`, "Denied"},
		{"entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"whitespace", "  too \n many\t spaces ", "too many spaces"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestText_Truncates(t *testing.T) {
	got := Text(strings.Repeat("a", MaxTextLength*2))
	if n := utf8.RuneCountInString(got); n != MaxTextLength {
		t.Errorf("length = %d, want %d", n, MaxTextLength)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got[len(got)-8:])
	}
}
