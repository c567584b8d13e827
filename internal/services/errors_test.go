package services_test

import (
	"errors"
	"strings"
	"testing"

	"podscribe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrExternalTool, "download", "fetch", "stream audio", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to survive wrapping, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected underlying error to survive wrapping, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"download", "fetch", "stream audio", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in message %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "transcribe", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to transient, got %v", err)
	}
}

func TestWrapEmptyDetail(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsDownloadFailure(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"download failed: connection reset", true},
		{"Download failed after 3 attempts", true},
		{"external tool error: download: fetch: size mismatch", true},
		{"transcription failed: whisper-cli exited 1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := services.IsDownloadFailure(tc.message); got != tc.want {
			t.Errorf("IsDownloadFailure(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}
