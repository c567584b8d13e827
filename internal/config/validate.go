package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.AudioDir) == "" {
		return errors.New("paths.audio_dir must be set")
	}
	if strings.TrimSpace(c.Paths.TranscriptDir) == "" {
		return errors.New("paths.transcript_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.Model) == "" {
		return errors.New("transcription.model must be set")
	}
	return nil
}

func (c *Config) validateDiarization() error {
	if c.DiarizationEnabled() && strings.TrimSpace(c.Diarization.ScriptPath) == "" {
		return errors.New("diarization.script_path must be set when diarization.hf_token is configured")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"download.connect_timeout":      c.Download.ConnectTimeout,
		"download.request_timeout":      c.Download.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive (seconds)", name)
		}
	}
	return nil
}
