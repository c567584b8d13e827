package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HUGGING_FACE_HUB_TOKEN", "")
	t.Setenv("HF_TOKEN", "")
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootHasExpectedSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"status", "add", "episodes", "queue", "requeue", "cancel", "worker", "config", "notify"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("output %q should mention %q", out, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatal("sample config missing [paths] section")
	}

	// Running again without --force must refuse to overwrite.
	if _, err := runCommand(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("second init should fail without --force")
	}
	if _, err := runCommand(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestConfigShowPrintsEffectiveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := runCommand(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}

	out, err := runCommand(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"audio_dir:", "whisper_model:", "diarization:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQueueClearRequiresScope(t *testing.T) {
	if _, err := runCommand(t, "queue", "clear"); err == nil {
		t.Fatal("clear without flags should fail")
	}
}
