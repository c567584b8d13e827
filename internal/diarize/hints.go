package diarize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HintsPath returns where a speaker-count hint for the episode is expected.
// Users drop this file in the transcript directory before requeueing an
// episode for diarization.
func HintsPath(transcriptDir string, episodeID int64) string {
	return filepath.Join(transcriptDir, fmt.Sprintf("%d_hints.json", episodeID))
}

// ReadHint loads the speaker-count hint from path. Returns false when the
// file is absent, malformed, or carries no positive hint.
func ReadHint(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var doc struct {
		NumSpeakersHint int `json:"num_speakers_hint"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, false
	}
	if doc.NumSpeakersHint <= 0 {
		return 0, false
	}
	return doc.NumSpeakersHint, true
}
