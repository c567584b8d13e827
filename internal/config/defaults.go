package config

const (
	defaultAudioDir      = "~/.local/share/podscribe/audio"
	defaultTranscriptDir = "~/.local/share/podscribe/transcripts"
	defaultModelsDir     = "~/.local/share/podscribe/models"
	defaultLogDir        = "~/.local/share/podscribe/logs"

	defaultWhisperBinary = "whisper-cli"
	defaultWhisperModel  = "base.en"

	defaultPythonBinary    = "python3"
	defaultConnectTimeout  = 30
	defaultRequestTimeout  = 600
	defaultQueuePoll       = 10
	defaultErrorRetry      = 10
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultAutoTranscribe  = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AudioDir:      defaultAudioDir,
			TranscriptDir: defaultTranscriptDir,
			ModelsDir:     defaultModelsDir,
			LogDir:        defaultLogDir,
		},
		Transcription: Transcription{
			WhisperBinary: defaultWhisperBinary,
			Model:         defaultWhisperModel,
		},
		Diarization: Diarization{
			PythonBinary: defaultPythonBinary,
		},
		Download: Download{
			ConnectTimeout: defaultConnectTimeout,
			RequestTimeout: defaultRequestTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePoll,
			ErrorRetryInterval: defaultErrorRetry,
			AutoTranscribe:     defaultAutoTranscribe,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
