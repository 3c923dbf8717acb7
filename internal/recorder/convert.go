package recorder

import (
	"fmt"
	"os"
	"os/exec"
)

// convertToMP4 re-encodes the MJPG temp file into H.264 MP4 for browser
// playback. Best effort: if ffmpeg is missing or fails, the caller keeps
// the AVI so footage is never lost.
//
// yuv420p and the even-dimension scale filter are required for playback in
// Chrome/QuickTime; faststart moves the moov atom up for streaming.
func convertToMP4(srcPath, dstPath string) error {
	const op = "recorder.convertToMP4"

	cmd := exec.Command("ffmpeg", "-y",
		"-i", srcPath,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		dstPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(dstPath)

		return fmt.Errorf("%s: %w: %s", op, err, out)
	}

	info, err := os.Stat(dstPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%s: output file missing or empty", op)
	}

	return os.Remove(srcPath)
}
