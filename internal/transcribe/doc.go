// Package transcribe wraps the whisper-cli speech-to-text tool, producing
// JSON, text, and SRT transcripts and surfacing decode progress.
package transcribe
