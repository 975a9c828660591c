package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAudioArgs(t *testing.T) {
	args := extractAudioArgs("/tmp/job/source.mp4", "/tmp/job/audio.mp3")
	assert.Equal(t, []string{
		"-y",
		"-i", "/tmp/job/source.mp4",
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "4",
		"/tmp/job/audio.mp3",
	}, args)
}

func TestBurnSubtitlesArgs(t *testing.T) {
	args := burnSubtitlesArgs("/tmp/job/source.mp4", "/tmp/job/captions.srt", "/tmp/job/out.mp4")

	assert.Equal(t, "-y", args[0])
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "copy")

	var filter string
	for i, a := range args {
		if a == "-vf" {
			filter = args[i+1]
		}
	}
	assert.True(t, strings.HasPrefix(filter, "subtitles='"), "filter: %s", filter)
	assert.Contains(t, filter, "force_style='"+subtitleStyle+"'")
}

func TestFilterPathEscaping(t *testing.T) {
	assert.Equal(t, "/tmp/a/b.srt", filterPath("/tmp/a/b.srt"))
	// Backslashes become slashes, colons are filter syntax and get escaped.
	assert.Equal(t, "C\\:/jobs/b.srt", filterPath(`C:\jobs\b.srt`))
}

func TestStderrTailKeepsLastLines(t *testing.T) {
	out := "line1\nline2\nline3\nline4\nline5\nline6"
	tail := stderrTail(out)
	assert.Equal(t, "line3 | line4 | line5 | line6", tail)
	assert.Equal(t, "only", stderrTail("only\n"))
}
