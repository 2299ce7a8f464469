package types

import (
	"testing"
)

func TestFormatNeedsSignature(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   bool
	}{
		{"direct url", Format{URL: "https://example.com/v"}, false},
		{"cipher only", Format{SignatureCipher: "s=abc&url=x"}, true},
		{"both", Format{URL: "https://example.com/v", SignatureCipher: "s=abc"}, false},
		{"neither", Format{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.NeedsSignature(); got != tt.want {
				t.Errorf("NeedsSignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCipher(t *testing.T) {
	c, err := ParseCipher("s=AB%3DCD&sp=sig&url=https%3A%2F%2Fr1.example.com%2Fvideoplayback%3Fn%3Dxyz")
	if err != nil {
		t.Fatalf("ParseCipher() error = %v", err)
	}
	if c.S != "AB=CD" {
		t.Errorf("S = %q, want %q", c.S, "AB=CD")
	}
	if c.SP != "sig" {
		t.Errorf("SP = %q, want %q", c.SP, "sig")
	}
	if c.URL != "https://r1.example.com/videoplayback?n=xyz" {
		t.Errorf("URL = %q", c.URL)
	}

	c, err = ParseCipher("s=abc&url=x")
	if err != nil {
		t.Fatalf("ParseCipher() error = %v", err)
	}
	if c.SP != "signature" {
		t.Errorf("default SP = %q, want %q", c.SP, "signature")
	}

	if _, err := ParseCipher("s=%zz"); err == nil {
		t.Error("expected error for malformed query")
	}
}
