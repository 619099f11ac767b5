package validation

import (
	"strings"
	"testing"
)

func TestValidateJSONPayload(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty JSON is not allowed", input: "", wantError: true},
		{name: "valid small JSON", input: `{"key":"value"}`},
		{name: "JSON at max size", input: `{"data":"` + strings.Repeat("a", MaxJSONPayload-11) + `"}`},
		{name: "JSON exceeds max size", input: `{"data":"` + strings.Repeat("a", MaxJSONPayload+100) + `"}`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONPayload(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateJSONPayload() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		raw       string
		wantKey   string
		wantValue string
		wantError bool
	}{
		{raw: "X-Trace: abc", wantKey: "X-Trace", wantValue: "abc"},
		{raw: "x-trace:abc", wantKey: "X-Trace", wantValue: "abc"},
		{raw: "Accept: text/plain; q=0.9", wantKey: "Accept", wantValue: "text/plain; q=0.9"},
		{raw: "X-Empty:", wantKey: "X-Empty", wantValue: ""},
		{raw: "X-Url: https://a.example/b", wantKey: "X-Url", wantValue: "https://a.example/b"},
		{raw: "no-colon", wantError: true},
		{raw: ": value", wantError: true},
		{raw: "Bad Header: x", wantError: true},
		{raw: "X-Bad: a\nb", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, value, err := ParseHeader(tt.raw)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseHeader(%q) error = %v, wantError %v", tt.raw, err, tt.wantError)
			}
			if err != nil {
				return
			}
			if key != tt.wantKey || value != tt.wantValue {
				t.Errorf("ParseHeader(%q) = %q, %q; want %q, %q", tt.raw, key, value, tt.wantKey, tt.wantValue)
			}
		})
	}
}
