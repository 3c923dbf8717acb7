package recordstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/storage/postgres"
)

type RecordStorage struct {
	db *sqlx.DB
}

// ListFilter narrows the history query. Zero values mean "no filter".
type ListFilter struct {
	Employee       string
	Platform       string
	Status         string
	TrackingNumber string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

func New(db *sqlx.DB) *RecordStorage {
	return &RecordStorage{
		db: db,
	}
}

func (s *RecordStorage) Create(rec models.PackingRecord) error {
	const op = "storage.postgres.records.Create"

	query := fmt.Sprintf(`INSERT INTO %s
		(record_id, tracking_number, employee, platform, camera_id, start_time, file_path, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, postgres.RecordsTable)

	_, err := s.db.Exec(query,
		rec.RecordID, rec.TrackingNumber, rec.Employee, rec.Platform,
		rec.CameraID, rec.StartTime, rec.FilePath, models.StatusRecording,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *RecordStorage) Finish(rec models.PackingRecord) error {
	const op = "storage.postgres.records.Finish"

	query := fmt.Sprintf(`UPDATE %s SET
		stop_time = $1, duration_seconds = $2, file_path = $3, file_size_kb = $4,
		sha256 = $5, frame_count = $6, status = $7
		WHERE record_id = $8`, postgres.RecordsTable)

	res, err := s.db.Exec(query,
		rec.StopTime, rec.DurationSeconds, rec.FilePath, rec.FileSizeKB,
		rec.SHA256, rec.FrameCount, models.StatusCompleted, rec.RecordID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return checkAffected(op, res)
}

func (s *RecordStorage) Fail(rec models.PackingRecord, reason string) error {
	const op = "storage.postgres.records.Fail"

	query := fmt.Sprintf(`UPDATE %s SET
		stop_time = $1, duration_seconds = $2, file_path = $3, file_size_kb = $4,
		frame_count = $5, status = $6, error_message = $7
		WHERE record_id = $8`, postgres.RecordsTable)

	res, err := s.db.Exec(query,
		rec.StopTime, rec.DurationSeconds, rec.FilePath, rec.FileSizeKB,
		rec.FrameCount, models.StatusFailed, reason, rec.RecordID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return checkAffected(op, res)
}

func (s *RecordStorage) Cancel(recordID string, stopTime time.Time) error {
	const op = "storage.postgres.records.Cancel"

	query := fmt.Sprintf(`UPDATE %s SET stop_time = $1, status = $2, file_path = ''
		WHERE record_id = $3`, postgres.RecordsTable)

	res, err := s.db.Exec(query, stopTime, models.StatusCancelled, recordID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return checkAffected(op, res)
}

// ListActive returns records still marked RECORDING. Used by the crash
// sweep on startup.
func (s *RecordStorage) ListActive() ([]models.PackingRecord, error) {
	const op = "storage.postgres.records.ListActive"

	var recs []models.PackingRecord
	query := fmt.Sprintf(`SELECT * FROM %s WHERE status = $1 ORDER BY start_time`, postgres.RecordsTable)

	if err := s.db.Select(&recs, query, models.StatusRecording); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return recs, nil
}

func (s *RecordStorage) Record(recordID string) (models.PackingRecord, error) {
	const op = "storage.postgres.records.Record"

	var rec models.PackingRecord
	query := fmt.Sprintf(`SELECT * FROM %s WHERE record_id = $1`, postgres.RecordsTable)

	if err := s.db.Get(&rec, query, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PackingRecord{}, fmt.Errorf("%s: %w", op, errs.ErrRecordNotFound)
		}

		return models.PackingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

func (s *RecordStorage) List(f ListFilter) ([]models.PackingRecord, error) {
	const op = "storage.postgres.records.List"

	where, args := buildFilter(f)

	query := fmt.Sprintf(`SELECT * FROM %s %s ORDER BY start_time DESC`, postgres.RecordsTable, where)

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var recs []models.PackingRecord
	if err := s.db.Select(&recs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return recs, nil
}

func (s *RecordStorage) Count(f ListFilter) (int, error) {
	const op = "storage.postgres.records.Count"

	where, args := buildFilter(f)

	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, postgres.RecordsTable, where)

	if err := s.db.Get(&total, query, args...); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return total, nil
}

func (s *RecordStorage) TodayStats() (models.TodayStats, error) {
	const op = "storage.postgres.records.TodayStats"

	var stats models.TodayStats
	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = $1) AS completed,
		COUNT(*) FILTER (WHERE status = $2) AS errors,
		COALESCE(AVG(duration_seconds) FILTER (WHERE status = $1), 0) AS avg_duration,
		COALESCE(SUM(file_size_kb), 0) / 1024.0 AS total_size_mb
		FROM %s WHERE start_time >= CURRENT_DATE`, postgres.RecordsTable)

	row := s.db.QueryRow(query, models.StatusCompleted, models.StatusFailed)
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Errors, &stats.AvgDuration, &stats.TotalSizeMB); err != nil {
		return models.TodayStats{}, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

func buildFilter(f ListFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Employee != "" {
		add("employee = $%d", f.Employee)
	}
	if f.Platform != "" {
		add("platform = $%d", f.Platform)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.TrackingNumber != "" {
		add("tracking_number ILIKE $%d", "%"+f.TrackingNumber+"%")
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func checkAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrRecordNotFound)
	}

	return nil
}
