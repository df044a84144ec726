package clipboard

import (
	"encoding/base64"
	"testing"
)

func TestCopyEmptyContent(t *testing.T) {
	_, err := Copy("")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if err.Error() != "no content to copy" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateOSC52NoTmux(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	seq := generateOSC52(encoded, false)

	expected := "\x1b]52;c;" + encoded + "\x07"
	if seq != expected {
		t.Errorf("expected %q, got %q", expected, seq)
	}
}

func TestGenerateOSC52WithTmux(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	seq := generateOSC52(encoded, true)

	// DCS passthrough wrapper
	expected := "\x1bPtmux;\x1b\x1b]52;c;" + encoded + "\x07\x1b\\"
	if seq != expected {
		t.Errorf("expected %q, got %q", expected, seq)
	}
}

func TestCopyReportsMethodAndSize(t *testing.T) {
	result, err := Copy("hello world")
	if err != nil {
		t.Skipf("clipboard not available: %v", err)
	}
	if result.Method == "" {
		t.Error("expected non-empty method")
	}
	if result.ByteSize != 11 {
		t.Errorf("expected ByteSize=11, got %d", result.ByteSize)
	}
}
