package transcribe_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podscribe/internal/services"
	"podscribe/internal/testsupport"
	"podscribe/internal/transcribe"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestTranscribeProducesJSONTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg.WhisperModelPath(), 16)
	audio := filepath.Join(cfg.Paths.AudioDir, "show-1.mp3")
	testsupport.WriteFile(t, audio, 64)

	script := writeScript(t, `
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-of" ]; then out="$a"; fi
  prev="$a"
done
echo "whisper_print_progress_callback: progress = 50%"
echo "whisper_print_progress_callback: progress = 100%"
printf '{}' > "$out.json"
printf '' > "$out.txt"
printf '' > "$out.srt"
`)

	cli := transcribe.NewCLI(cfg, transcribe.WithBinary(script))
	var seen []int
	path, err := cli.Transcribe(context.Background(), audio, func(p int) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := filepath.Join(cfg.Paths.TranscriptDir, "show-1.json")
	if path != want {
		t.Fatalf("transcript path = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("transcript missing: %v", err)
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("progress updates = %v, want final 100", seen)
	}
}

func TestTranscribeMissingModel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := filepath.Join(cfg.Paths.AudioDir, "show.mp3")
	testsupport.WriteFile(t, audio, 64)

	cli := transcribe.NewCLI(cfg)
	_, err := cli.Transcribe(context.Background(), audio, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg.WhisperModelPath(), 16)

	cli := transcribe.NewCLI(cfg)
	_, err := cli.Transcribe(context.Background(), filepath.Join(cfg.Paths.AudioDir, "missing.mp3"), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranscribeFailureCarriesStderr(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg.WhisperModelPath(), 16)
	audio := filepath.Join(cfg.Paths.AudioDir, "show.mp3")
	testsupport.WriteFile(t, audio, 64)

	script := writeScript(t, `
echo "error: failed to decode audio" >&2
exit 1
`)
	cli := transcribe.NewCLI(cfg, transcribe.WithBinary(script))
	_, err := cli.Transcribe(context.Background(), audio, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to decode audio") {
		t.Fatalf("error should carry tool output, got %v", err)
	}
}

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line string
		pct  int
		ok   bool
	}{
		{"whisper_print_progress_callback: progress = 42%", 42, true},
		{"progress: 100", 100, true},
		{"progress = 0%", 0, true},
		{"total time = 12.3s", 0, false},
		{"progress = 250%", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		pct, ok := transcribe.ParseProgress(tc.line)
		if ok != tc.ok || pct != tc.pct {
			t.Errorf("ParseProgress(%q) = %d, %v; want %d, %v", tc.line, pct, ok, tc.pct, tc.ok)
		}
	}
}
