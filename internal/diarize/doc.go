// Package diarize runs the speaker-diarization script against a transcript
// and reads back speaker-annotated output, honoring optional speaker hints.
package diarize
