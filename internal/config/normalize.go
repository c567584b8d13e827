package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	if err := c.normalizeDiarization(); err != nil {
		return err
	}
	c.normalizeTimings()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if c.Paths.TranscriptDir, err = expandPath(c.Paths.TranscriptDir); err != nil {
		return fmt.Errorf("paths.transcript_dir: %w", err)
	}
	if c.Paths.ModelsDir, err = expandPath(c.Paths.ModelsDir); err != nil {
		return fmt.Errorf("paths.models_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.WhisperBinary = strings.TrimSpace(c.Transcription.WhisperBinary)
	if c.Transcription.WhisperBinary == "" {
		c.Transcription.WhisperBinary = defaultWhisperBinary
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
}

func (c *Config) normalizeDiarization() error {
	c.Diarization.PythonBinary = strings.TrimSpace(c.Diarization.PythonBinary)
	if c.Diarization.PythonBinary == "" {
		c.Diarization.PythonBinary = defaultPythonBinary
	}
	if c.Diarization.ScriptPath != "" {
		expanded, err := expandPath(c.Diarization.ScriptPath)
		if err != nil {
			return fmt.Errorf("diarization.script_path: %w", err)
		}
		c.Diarization.ScriptPath = expanded
	}
	c.Diarization.HuggingFaceToken = strings.TrimSpace(c.Diarization.HuggingFaceToken)
	if c.Diarization.HuggingFaceToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Diarization.HuggingFaceToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Diarization.HuggingFaceToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTimings() {
	if c.Download.ConnectTimeout <= 0 {
		c.Download.ConnectTimeout = defaultConnectTimeout
	}
	if c.Download.RequestTimeout <= 0 {
		c.Download.RequestTimeout = defaultRequestTimeout
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePoll
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetry
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
