// Package workflow runs the background worker that drains the episode queue.
// One episode is processed at a time: audio download, whisper transcription,
// optional speaker diarization, then persistence of the results.
package workflow
