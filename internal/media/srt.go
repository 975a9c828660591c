package media

import (
	"fmt"
	"strings"
	"time"
)

const (
	wordsPerCue = 10
	cueDuration = 4 * time.Second
)

// TranscriptToSRT derives a deterministic SRT file from a plain transcript by
// pacing a fixed number of words per cue. It is not speech-aligned; it only
// has to be stable and well-formed for the burn step.
func TranscriptToSRT(transcript string) string {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	cue := 1
	for start := 0; start < len(words); start += wordsPerCue {
		end := start + wordsPerCue
		if end > len(words) {
			end = len(words)
		}
		from := time.Duration(cue-1) * cueDuration
		to := time.Duration(cue) * cueDuration
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, srtTimestamp(from), srtTimestamp(to), strings.Join(words[start:end], " "))
		cue++
	}
	return b.String()
}

// srtTimestamp formats a duration as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
