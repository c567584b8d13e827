package transcribe

import (
	"strconv"
	"strings"
)

// ParseProgress extracts a whole percentage from a whisper output line. Lines
// mentioning progress carry either a "NN%" token or a bare integer.
func ParseProgress(line string) (int, bool) {
	if !strings.Contains(strings.ToLower(line), "progress") {
		return 0, false
	}
	for _, field := range strings.Fields(line) {
		field = strings.Trim(field, ",:=")
		trimmed := strings.TrimSuffix(field, "%")
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			continue
		}
		if n >= 0 && n <= 100 {
			return n, true
		}
	}
	return 0, false
}
