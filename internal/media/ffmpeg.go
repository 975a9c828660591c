// Package media shells out to ffmpeg for audio extraction and subtitle
// burning, and manages the per-job scratch directory.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

// subtitleStyle matches the burned-caption look: white text, black outline,
// slightly raised margin.
const subtitleStyle = "Fontname=Arial,FontSize=24,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,BorderStyle=1,Outline=1,Shadow=0,MarginV=25"

// FFmpeg invokes the ffmpeg binary with a hard timeout per call. A non-zero
// exit or an expired timeout surfaces as ErrToolFailure.
type FFmpeg struct {
	Bin     string
	Timeout time.Duration
}

// NewFFmpeg constructs an FFmpeg runner.
func NewFFmpeg(bin string, timeout time.Duration) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{Bin: bin, Timeout: timeout}
}

// ExtractAudio strips the video track and encodes the audio as mp3.
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, extractAudioArgs(inputPath, outputPath))
}

// BurnSubtitles renders the SRT file onto the video. Audio is copied without
// re-encoding.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, inputPath, subtitlePath, outputPath string) error {
	return f.run(ctx, burnSubtitlesArgs(inputPath, subtitlePath, outputPath))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, f.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", f.Bin, f.Timeout, model.ErrToolFailure)
	}
	return fmt.Errorf("%s: %v: %s: %w", f.Bin, err, stderrTail(stderr.String()), model.ErrToolFailure)
}

func extractAudioArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "4",
		outputPath,
	}
}

func burnSubtitlesArgs(inputPath, subtitlePath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("subtitles='%s':force_style='%s'", filterPath(subtitlePath), subtitleStyle),
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-c:a", "copy",
		outputPath,
	}
}

// filterPath escapes a path for use inside an ffmpeg filter expression, where
// backslashes and colons are syntax.
func filterPath(path string) string {
	escaped := strings.ReplaceAll(path, "\\", "/")
	return strings.ReplaceAll(escaped, ":", "\\:")
}

// stderrTail keeps the last few lines of ffmpeg output; the useful error is
// always at the end.
func stderrTail(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
