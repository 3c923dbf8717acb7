package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

// recordingDir builds recordings/YYYY-MM-DD/PLATFORM/EMPLOYEE under the
// videos root, creating it if needed.
func recordingDir(root string, start time.Time, platform, employee string) (string, error) {
	dir := filepath.Join(root, start.Format("2006-01-02"), cleanPathPart(platform), cleanPathPart(employee))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}

// cleanPathPart strips characters that would escape or break the directory
// layout.
func cleanPathPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(s))
}

func fileSHA256(path string) (string, error) {
	const op = "recorder.fileSHA256"

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeMetadata writes the sidecar JSON next to a finalized video file.
func writeMetadata(rec models.PackingRecord) error {
	const op = "recorder.writeMetadata"

	stop := ""
	if rec.StopTime != nil {
		stop = rec.StopTime.Format(time.RFC3339)
	}

	meta := models.RecordMetadata{
		TrackingNumber:  rec.TrackingNumber,
		Employee:        rec.Employee,
		Platform:        rec.Platform,
		CameraID:        rec.CameraID,
		StartTime:       rec.StartTime.Format(time.RFC3339),
		StopTime:        stop,
		DurationSeconds: rec.DurationSeconds,
		FilePath:        rec.FilePath,
		FileSizeKB:      rec.FileSizeKB,
		SHA256:          rec.SHA256,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sidecar := strings.TrimSuffix(rec.FilePath, filepath.Ext(rec.FilePath)) + ".json"

	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
