package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// Sweep repairs records left in RECORDING state by a crash or power loss.
// A row whose video file exists with nonzero size is finalized as completed
// using the file's modification time as the stop time; anything else is
// marked failed. Runs once at startup, before any new recording is armed.
func (s *Service) Sweep() error {
	const op = "recorder.Sweep"

	log := s.log.With(slog.String("op", op))

	orphans, err := s.saver.ListActive()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, rec := range orphans {
		path := rec.FilePath
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() == 0 {
			// the crash may have left only the unconverted original
			path = tempSibling(rec.FilePath)
			info, statErr = os.Stat(path)
		}

		if statErr != nil || info.Size() == 0 {
			rec.Status = models.StatusFailed
			rec.FilePath = ""
			stop := time.Now()
			rec.StopTime = &stop

			if err := s.saver.Fail(rec, "interrupted, no video found"); err != nil {
				log.Error("failed to mark orphan failed", sl.Err(err), slog.String("record_id", rec.RecordID))
			}

			log.Warn("orphaned recording without video", slog.String("record_id", rec.RecordID))

			continue
		}

		stop := info.ModTime()
		rec.StopTime = &stop
		rec.DurationSeconds = stop.Sub(rec.StartTime).Seconds()
		rec.FilePath = path
		rec.FileSizeKB = info.Size() / 1024
		rec.Status = models.StatusCompleted

		if hash, err := fileSHA256(path); err == nil {
			rec.SHA256 = hash
		}

		if err := s.saver.Finish(rec); err != nil {
			log.Error("failed to close orphan", sl.Err(err), slog.String("record_id", rec.RecordID))

			continue
		}

		log.Info("recovered orphaned recording",
			slog.String("record_id", rec.RecordID),
			slog.Float64("duration_s", rec.DurationSeconds),
		)
	}

	if len(orphans) > 0 {
		log.Info("orphan sweep done", slog.Int("repaired", len(orphans)))
	}

	return nil
}
