package diarize_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podscribe/internal/diarize"
	"podscribe/internal/services"
	"podscribe/internal/testsupport"
)

// setupScript installs a python3 stand-in with the given shell body.
func setupScript(t *testing.T, body string) (pythonPath string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python3")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write python stub: %v", err)
	}
	return path
}

func TestDiarizeReadsSpeakerCount(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarization())
	audio := filepath.Join(cfg.Paths.AudioDir, "ep-1.mp3")
	transcript := filepath.Join(cfg.Paths.TranscriptDir, "ep-1.json")
	testsupport.WriteFile(t, audio, 32)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	cfg.Diarization.PythonBinary = setupScript(t, `
transcript="$3"
out="${transcript%.json}_with_speakers.json"
echo "DIARIZATION_PROGRESS: 25"
echo "DIARIZATION_PROGRESS: 90"
printf '{"diarization": {"num_speakers": 3}}' > "$out"
`)

	client := diarize.NewScript(cfg)
	var seen []int
	res, err := client.Diarize(context.Background(), audio, transcript, "", func(p int) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if res.NumSpeakers != 3 {
		t.Fatalf("speakers = %d, want 3", res.NumSpeakers)
	}
	want := filepath.Join(cfg.Paths.TranscriptDir, "ep-1_with_speakers.json")
	if res.OutputPath != want {
		t.Fatalf("output path = %q, want %q", res.OutputPath, want)
	}
	if len(seen) < 2 || seen[0] != 25 {
		t.Fatalf("progress = %v, want to start at 25", seen)
	}
}

func TestDiarizeSucceedsWithoutAnnotatedOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarization())
	audio := filepath.Join(cfg.Paths.AudioDir, "ep-9.mp3")
	transcript := filepath.Join(cfg.Paths.TranscriptDir, "ep-9.json")
	testsupport.WriteFile(t, audio, 32)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	cfg.Diarization.PythonBinary = setupScript(t, "exit 0\n")

	client := diarize.NewScript(cfg)
	res, err := client.Diarize(context.Background(), audio, transcript, "", nil)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if res.NumSpeakers != 0 {
		t.Fatalf("speakers = %d, want 0 when the script wrote no output", res.NumSpeakers)
	}
}

func TestDiarizeRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := diarize.NewScript(cfg)
	_, err := client.Diarize(context.Background(), "a.mp3", "t.json", "", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDiarizeConsumesHints(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarization())
	audio := filepath.Join(cfg.Paths.AudioDir, "ep-2.mp3")
	transcript := filepath.Join(cfg.Paths.TranscriptDir, "ep-2.json")
	testsupport.WriteFile(t, audio, 32)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	hints := diarize.HintsPath(cfg.Paths.TranscriptDir, 2)
	if err := os.WriteFile(hints, []byte(`{"num_speakers_hint": 4}`), 0o644); err != nil {
		t.Fatalf("write hints: %v", err)
	}

	argsFile := filepath.Join(t.TempDir(), "args")
	cfg.Diarization.PythonBinary = setupScript(t, `
echo "$@" > `+argsFile+`
transcript="$3"
out="${transcript%.json}_with_speakers.json"
printf '{"diarization": {"num_speakers": 4}}' > "$out"
`)

	client := diarize.NewScript(cfg)
	if _, err := client.Diarize(context.Background(), audio, transcript, hints, nil); err != nil {
		t.Fatalf("Diarize: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	for _, want := range []string{"--hints-file", "--speakers 4"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("args %q missing %q", string(args), want)
		}
	}
	if _, err := os.Stat(hints); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("hints file should be removed after the run, stat err = %v", err)
	}
}

func TestDiarizePassesHintsWithoutSpeakerCount(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarization())
	audio := filepath.Join(cfg.Paths.AudioDir, "ep-5.mp3")
	transcript := filepath.Join(cfg.Paths.TranscriptDir, "ep-5.json")
	testsupport.WriteFile(t, audio, 32)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	// Re-labeling corrections only, no speaker count. The file must still
	// reach the script before it is consumed.
	hints := diarize.HintsPath(cfg.Paths.TranscriptDir, 5)
	if err := os.WriteFile(hints, []byte(`{"relabel": {"SPEAKER_00": "Alice"}}`), 0o644); err != nil {
		t.Fatalf("write hints: %v", err)
	}

	argsFile := filepath.Join(t.TempDir(), "args")
	cfg.Diarization.PythonBinary = setupScript(t, `
echo "$@" > `+argsFile+`
exit 0
`)

	client := diarize.NewScript(cfg)
	if _, err := client.Diarize(context.Background(), audio, transcript, hints, nil); err != nil {
		t.Fatalf("Diarize: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	if !strings.Contains(string(args), "--hints-file "+hints) {
		t.Fatalf("args %q missing --hints-file", args)
	}
	if strings.Contains(string(args), "--speakers") {
		t.Fatalf("args %q should not carry --speakers without a count hint", args)
	}
	if _, err := os.Stat(hints); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("hints file should be removed after the run, stat err = %v", err)
	}
}

func TestDiarizeHintsRemovedOnFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarization())
	audio := filepath.Join(cfg.Paths.AudioDir, "ep-3.mp3")
	transcript := filepath.Join(cfg.Paths.TranscriptDir, "ep-3.json")
	testsupport.WriteFile(t, audio, 32)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	hints := diarize.HintsPath(cfg.Paths.TranscriptDir, 3)
	if err := os.WriteFile(hints, []byte(`{"num_speakers_hint": 2}`), 0o644); err != nil {
		t.Fatalf("write hints: %v", err)
	}

	cfg.Diarization.PythonBinary = setupScript(t, `
echo "pipeline load failed" >&2
exit 1
`)

	client := diarize.NewScript(cfg)
	_, err := client.Diarize(context.Background(), audio, transcript, hints, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := os.Stat(hints); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("hints file should be removed even on failure, stat err = %v", err)
	}
}

func TestReadHint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "5_hints.json")

	if _, ok := diarize.ReadHint(path); ok {
		t.Fatal("missing file should yield no hint")
	}
	if err := os.WriteFile(path, []byte(`{"num_speakers_hint": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := diarize.ReadHint(path); ok {
		t.Fatal("non-positive hint should be ignored")
	}
	if err := os.WriteFile(path, []byte(`{"num_speakers_hint": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if n, ok := diarize.ReadHint(path); !ok || n != 2 {
		t.Fatalf("ReadHint = %d, %v; want 2, true", n, ok)
	}
}
