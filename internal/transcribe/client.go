package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"podscribe/internal/config"
	"podscribe/internal/services"
)

// commandContext indirection lets tests and alternative runners substitute the
// process launcher.
var commandContext = exec.CommandContext

// ProgressFunc receives whole-percent progress during transcription. May be nil.
type ProgressFunc func(percent int)

// Client produces a transcript for an audio file.
type Client interface {
	Transcribe(ctx context.Context, audioPath string, progress ProgressFunc) (string, error)
}

// CLI drives the whisper-cli binary, emitting JSON, plain-text, and SRT
// transcripts next to each other and reporting progress as it decodes.
type CLI struct {
	binary    string
	modelPath string
	outputDir string
}

// Option adjusts CLI construction.
type Option func(*CLI)

// WithBinary overrides the whisper binary name or path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

func NewCLI(cfg *config.Config, opts ...Option) *CLI {
	c := &CLI{
		binary:    cfg.Transcription.WhisperBinary,
		modelPath: cfg.WhisperModelPath(),
		outputDir: cfg.Paths.TranscriptDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe runs whisper-cli against audioPath and returns the path of the
// JSON transcript.
func (c *CLI) Transcribe(ctx context.Context, audioPath string, progress ProgressFunc) (string, error) {
	if _, err := os.Stat(c.modelPath); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "model",
			fmt.Sprintf("whisper model not found at %s", c.modelPath), err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe", "input", "audio file not found", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outputBase := filepath.Join(c.outputDir, base)

	args := []string{
		"-m", c.modelPath,
		"-f", audioPath,
		"-oj",
		"-otxt",
		"-osrt",
		"-of", outputBase,
		"-pp",
	}
	cmd := commandContext(ctx, c.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "spawn", "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "spawn", "stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "spawn",
			fmt.Sprintf("start %s", c.binary), err)
	}

	var tail tailBuffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanOutput(stdout, progress, &tail)
	}()
	go func() {
		defer wg.Done()
		scanOutput(stderr, progress, &tail)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "transcribe", "run", "transcription cancelled", ctx.Err())
		}
		detail := tail.String()
		if detail != "" {
			detail = ": " + detail
		}
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "run",
			fmt.Sprintf("%s failed%s", c.binary, detail), err)
	}

	transcript := outputBase + ".json"
	if _, err := os.Stat(transcript); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "output",
			"transcript not produced", err)
	}
	if progress != nil {
		progress(100)
	}
	return transcript, nil
}

func scanOutput(r io.Reader, progress ProgressFunc, tail *tailBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if pct, ok := ParseProgress(line); ok && progress != nil {
			progress(pct)
		}
	}
}

// tailBuffer keeps the last few output lines for error reporting.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

const tailLines = 5

func (b *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > tailLines {
		b.lines = b.lines[len(b.lines)-tailLines:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "; ")
}
