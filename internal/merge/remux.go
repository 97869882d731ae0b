package merge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Remuxer repackages a raw concatenated stream into the final container
// without re-encoding.
type Remuxer interface {
	Remux(ctx context.Context, src, dst string) error
}

// FFmpegRemuxer shells out to ffmpeg for the remux: the video stream and,
// when present, the audio stream are copied verbatim; ADTS audio gets the
// aac_adtstoasc bitstream filter so it fits an MP4 container. Packets
// without a valid decode timestamp are dropped by ffmpeg during the copy.
type FFmpegRemuxer struct {
	// Bin is the ffmpeg executable, "ffmpeg" from PATH when empty.
	Bin string

	// Threads is passed through to ffmpeg, 32 when zero.
	Threads int
}

// Remux runs the stream copy. ffmpeg's stderr is included in the error on
// failure, since that is where it reports what went wrong.
func (r *FFmpegRemuxer) Remux(ctx context.Context, src, dst string) error {
	bin := r.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	threads := r.Threads
	if threads <= 0 {
		threads = 32
	}

	args := []string{
		"-i", src,
		"-c", "copy",
		"-map", "0:v",
		"-map", "0:a?",
		"-bsf:a", "aac_adtstoasc",
		"-threads", strconv.Itoa(threads),
		"-y", dst,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
