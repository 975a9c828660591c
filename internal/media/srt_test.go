package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptToSRTEmpty(t *testing.T) {
	assert.Empty(t, TranscriptToSRT(""))
	assert.Empty(t, TranscriptToSRT("   \n\t"))
}

func TestTranscriptToSRTSingleCue(t *testing.T) {
	srt := TranscriptToSRT("hello world")
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:04,000\nhello world\n\n", srt)
}

func TestTranscriptToSRTPacesWords(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "word"
	}
	srt := TranscriptToSRT(strings.Join(words, " "))

	blocks := strings.Split(strings.TrimSuffix(srt, "\n\n"), "\n\n")
	require.Len(t, blocks, 3, "25 words at 10 per cue makes 3 cues")

	assert.True(t, strings.HasPrefix(blocks[1], "2\n00:00:04,000 --> 00:00:08,000\n"))
	assert.True(t, strings.HasPrefix(blocks[2], "3\n00:00:08,000 --> 00:00:12,000\n"))

	lastLine := blocks[2][strings.LastIndex(blocks[2], "\n")+1:]
	assert.Len(t, strings.Fields(lastLine), 5, "final cue carries the remainder")
}

func TestSRTTimestampFormat(t *testing.T) {
	assert.Equal(t, "00:00:00,000", srtTimestamp(0))
	assert.Equal(t, "01:01:01,500", srtTimestamp(3661500*1000000))
}
