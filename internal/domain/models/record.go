package models

import "time"

// PackingRecord statuses. A record is created as StatusRecording and ends
// in exactly one of the terminal states.
const (
	StatusRecording = "RECORDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusFailed    = "FAILED"
)

// PackingRecord is one packing capture, active or historical.
type PackingRecord struct {
	RecordID        string     `json:"record_id" db:"record_id"`
	TrackingNumber  string     `json:"tracking_number" db:"tracking_number"`
	Employee        string     `json:"employee" db:"employee"`
	Platform        string     `json:"platform" db:"platform"`
	CameraID        string     `json:"camera_id" db:"camera_id"`
	StartTime       time.Time  `json:"start_time" db:"start_time"`
	StopTime        *time.Time `json:"stop_time,omitempty" db:"stop_time"`
	DurationSeconds float64    `json:"duration_seconds" db:"duration_seconds"`
	FilePath        string     `json:"file_path" db:"file_path"`
	FileSizeKB      int64      `json:"file_size_kb" db:"file_size_kb"`
	SHA256          string     `json:"sha256,omitempty" db:"sha256"`
	Status          string     `json:"status" db:"status"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	FrameCount      int64      `json:"frame_count" db:"frame_count"`
}

// RecordMetadata is the sidecar document written next to a finalized video.
// Its field set is consumed by external verifiers and must stay stable.
type RecordMetadata struct {
	TrackingNumber  string  `json:"tracking_number"`
	Employee        string  `json:"employee"`
	Platform        string  `json:"platform"`
	CameraID        string  `json:"camera_id"`
	StartTime       string  `json:"start_time"`
	StopTime        string  `json:"stop_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	FilePath        string  `json:"file_path"`
	FileSizeKB      int64   `json:"file_size_kb"`
	SHA256          string  `json:"sha256"`
}

// TodayStats is the aggregate shown on the dashboard header.
type TodayStats struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Errors      int     `json:"errors"`
	AvgDuration float64 `json:"avg_duration"`
	TotalSizeMB float64 `json:"total_size_mb"`
}
