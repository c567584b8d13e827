package diarize

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"podscribe/internal/config"
	"podscribe/internal/services"
)

var commandContext = exec.CommandContext

// progressPrefix marks machine-readable progress lines printed by the
// diarization script.
const progressPrefix = "DIARIZATION_PROGRESS:"

// ProgressFunc receives whole-percent progress during diarization. May be nil.
type ProgressFunc func(percent int)

// Result holds the outcome of a diarization run.
type Result struct {
	// OutputPath is the speaker-annotated transcript.
	OutputPath string
	// NumSpeakers is the speaker count the model settled on, 0 if the
	// script did not report one.
	NumSpeakers int
}

// Client annotates a transcript with speaker labels. hintsPath may be empty
// when no speaker hints were left for the episode.
type Client interface {
	Diarize(ctx context.Context, audioPath, transcriptPath, hintsPath string, progress ProgressFunc) (*Result, error)
}

// Script runs the pyannote-based diarization script as a subprocess.
type Script struct {
	python     string
	scriptPath string
	token      string
}

func NewScript(cfg *config.Config) *Script {
	return &Script{
		python:     cfg.Diarization.PythonBinary,
		scriptPath: cfg.Diarization.ScriptPath,
		token:      cfg.Diarization.HuggingFaceToken,
	}
}

// Diarize invokes the script against the audio and its transcript, then reads
// back the speaker-annotated output it produces. A hints file left beside the
// transcript is handed to the script, with the speaker count pinned when the
// file carries one; it is consumed either way.
func (s *Script) Diarize(ctx context.Context, audioPath, transcriptPath, hintsPath string, progress ProgressFunc) (*Result, error) {
	if s.token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "auth",
			"hugging face token not configured", nil)
	}
	if _, err := os.Stat(s.scriptPath); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "script",
			fmt.Sprintf("diarization script not found at %s", s.scriptPath), err)
	}
	if _, err := os.Stat(transcriptPath); err != nil {
		return nil, services.Wrap(services.ErrValidation, "diarize", "input", "transcript not found", err)
	}

	args := []string{s.scriptPath, audioPath, transcriptPath, "--token", s.token}
	if hintsPath != "" {
		args = append(args, "--hints-file", hintsPath)
		if hint, ok := ReadHint(hintsPath); ok {
			args = append(args, "--speakers", strconv.Itoa(hint))
		}
		// Hints apply to exactly one run, even one that fails.
		defer os.Remove(hintsPath)
	}

	cmd := commandContext(ctx, s.python, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "spawn", "stdout pipe", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "spawn",
			fmt.Sprintf("start %s", s.python), err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if pct, ok := parseProgressLine(scanner.Text()); ok && progress != nil {
				progress(pct)
			}
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "diarize", "run", "diarization cancelled", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			detail = ": " + lastLine(detail)
		}
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "run",
			fmt.Sprintf("diarization script failed%s", detail), err)
	}

	// A zero exit with no annotated output still counts as success: the
	// transcript is usable, the speaker count just stays unknown.
	outputPath := annotatedPathFor(transcriptPath)
	speakers := 0
	if data, readErr := os.ReadFile(outputPath); readErr == nil {
		speakers = parseSpeakerCount(data)
	} else {
		outputPath = ""
	}
	if progress != nil {
		progress(100)
	}
	return &Result{OutputPath: outputPath, NumSpeakers: speakers}, nil
}

func parseProgressLine(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, progressPrefix) {
		return 0, false
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, progressPrefix))
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// annotatedPathFor derives the script's output path from the transcript path.
func annotatedPathFor(transcriptPath string) string {
	ext := filepath.Ext(transcriptPath)
	return strings.TrimSuffix(transcriptPath, ext) + "_with_speakers" + ext
}

func parseSpeakerCount(data []byte) int {
	var doc struct {
		Diarization struct {
			NumSpeakers int `json:"num_speakers"`
		} `json:"diarization"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0
	}
	return doc.Diarization.NumSpeakers
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
