package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podscribe/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Transcription.Model != "base.en" {
		t.Fatalf("unexpected default model %q", cfg.Transcription.Model)
	}
	if cfg.Workflow.QueuePollInterval != 10 {
		t.Fatalf("unexpected poll interval %d", cfg.Workflow.QueuePollInterval)
	}
	if !filepath.IsAbs(cfg.Paths.AudioDir) {
		t.Fatalf("audio dir not expanded: %q", cfg.Paths.AudioDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
audio_dir = "` + filepath.Join(dir, "audio") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[transcription]
model = "large-v3"

[workflow]
queue_poll_interval = 3
auto_transcribe = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Transcription.Model != "large-v3" {
		t.Fatalf("model = %q", cfg.Transcription.Model)
	}
	if cfg.Workflow.QueuePollInterval != 3 {
		t.Fatalf("poll interval = %d", cfg.Workflow.QueuePollInterval)
	}
	if !cfg.Workflow.AutoTranscribe {
		t.Fatal("auto_transcribe not applied")
	}
	if cfg.WhisperModelPath() != filepath.Join(cfg.Paths.ModelsDir, "ggml-large-v3.bin") {
		t.Fatalf("model path = %q", cfg.WhisperModelPath())
	}
}

func TestValidateRejectsScriptlessDiarization(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.HuggingFaceToken = "hf_test"
	cfg.Diarization.ScriptPath = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "diarization.script_path") {
		t.Fatalf("expected script_path error, got %v", err)
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[workflow]\nqueue_poll_interval = -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Negative intervals normalize back to defaults rather than failing.
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workflow.QueuePollInterval != 10 {
		t.Fatalf("expected normalized interval, got %d", cfg.Workflow.QueuePollInterval)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[transcription]") {
		t.Fatal("sample config missing transcription section")
	}
}

func TestDiarizationEnabled(t *testing.T) {
	cfg := config.Default()
	if cfg.DiarizationEnabled() {
		t.Fatal("expected diarization disabled without token")
	}
	cfg.Diarization.HuggingFaceToken = "hf_test"
	if !cfg.DiarizationEnabled() {
		t.Fatal("expected diarization enabled with token")
	}
}
