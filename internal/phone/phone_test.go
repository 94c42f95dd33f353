package phone

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"+1 (415) 555-2671": "+14155552671",
		"415.555.2671":      "4155552671",
		"abc":               "",
		"00 31 6 12345678":  "0031612345678",
		"+31-6+1234":        "+3161234",
	}

	for input, want := range cases {
		if got := Sanitize(input); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestValid(t *testing.T) {
	valid := []string{"+14155552671", "4155552671", "+442071838750", "123456789012345"}
	for _, n := range valid {
		if !Valid(n) {
			t.Errorf("expected %q to be valid", n)
		}
	}

	invalid := []string{"", "12345", "+1234567890123456", "555-0100"}
	for _, n := range invalid {
		if Valid(n) {
			t.Errorf("expected %q to be invalid", n)
		}
	}
}

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("+1 415 555 2671", "US"); got != "+14155552671" {
		t.Fatalf("unexpected normalization: %s", got)
	}

	// Unparseable input falls back to the sanitized form.
	if got := NormalizeE164("12", "US"); got != "12" {
		t.Fatalf("expected sanitized fallback, got %s", got)
	}
}
