package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"podscribe/internal/config"
)

func newConfigCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigInitCommand(cc), newConfigShowCommand(cc))
	return cmd
}

func newConfigInitCommand(cc *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cc.configPath
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			cmd.Printf("audio_dir:        %s\n", cfg.Paths.AudioDir)
			cmd.Printf("transcript_dir:   %s\n", cfg.Paths.TranscriptDir)
			cmd.Printf("models_dir:       %s\n", cfg.Paths.ModelsDir)
			cmd.Printf("log_dir:          %s\n", cfg.Paths.LogDir)
			cmd.Printf("whisper_binary:   %s\n", cfg.Transcription.WhisperBinary)
			cmd.Printf("whisper_model:    %s\n", cfg.Transcription.Model)
			cmd.Printf("diarization:      %s\n", onOff(cfg.DiarizationEnabled()))
			cmd.Printf("auto_transcribe:  %s\n", onOff(cfg.Workflow.AutoTranscribe))
			cmd.Printf("ntfy_topic:       %s\n", valueOrUnset(cfg.Notifications.NtfyTopic))
			return nil
		},
	}
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}
