package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	recordstorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/records"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// RecordService serves the recording history views: filtered listing,
// the dashboard header stats and CSV export for audits.
type RecordService struct {
	log      *slog.Logger
	provider RecordProvider
}

type RecordProvider interface {
	Record(recordID string) (models.PackingRecord, error)
	List(f recordstorage.ListFilter) ([]models.PackingRecord, error)
	Count(f recordstorage.ListFilter) (int, error)
	TodayStats() (models.TodayStats, error)
}

func New(log *slog.Logger, provider RecordProvider) *RecordService {
	return &RecordService{
		log:      log,
		provider: provider,
	}
}

func (s *RecordService) Record(recordID string) (models.PackingRecord, error) {
	const op = "services.records.Record"

	rec, err := s.provider.Record(recordID)
	if err != nil {
		return models.PackingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

func (s *RecordService) List(f recordstorage.ListFilter) ([]models.PackingRecord, int, error) {
	const op = "services.records.List"

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	recs, err := s.provider.List(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	total, err := s.provider.Count(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return recs, total, nil
}

func (s *RecordService) TodayStats() (models.TodayStats, error) {
	const op = "services.records.TodayStats"

	stats, err := s.provider.TodayStats()
	if err != nil {
		return models.TodayStats{}, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

// ExportCSV streams the filtered history as CSV. Pagination is ignored;
// an export covers everything the filter matches.
func (s *RecordService) ExportCSV(w io.Writer, f recordstorage.ListFilter) error {
	const op = "services.records.ExportCSV"

	f.Limit = 0
	f.Offset = 0

	recs, err := s.provider.List(f)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cw := csv.NewWriter(w)

	header := []string{
		"record_id", "tracking_number", "employee", "platform", "camera_id",
		"start_time", "stop_time", "duration_seconds", "file_path", "file_size_kb", "status",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, rec := range recs {
		stop := ""
		if rec.StopTime != nil {
			stop = rec.StopTime.Format(time.RFC3339)
		}

		row := []string{
			rec.RecordID,
			rec.TrackingNumber,
			rec.Employee,
			rec.Platform,
			rec.CameraID,
			rec.StartTime.Format(time.RFC3339),
			stop,
			strconv.FormatFloat(rec.DurationSeconds, 'f', 1, 64),
			rec.FilePath,
			strconv.FormatInt(rec.FileSizeKB, 10),
			rec.Status,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		s.log.Error("csv export failed", slog.String("op", op), sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
