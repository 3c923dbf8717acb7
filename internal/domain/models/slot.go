package models

import "time"

// Activity is the recording state of an assigned camera slot.
type Activity string

const (
	ActivityIdle      Activity = "idle"
	ActivityRecording Activity = "recording"
	ActivityError     Activity = "error"
)

// CameraSlot binds one camera to an employee for the current shift.
type CameraSlot struct {
	CameraID       string    `json:"camera_id"`
	Employee       string    `json:"employee"`
	Platform       string    `json:"platform"`
	Activity       Activity  `json:"activity"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	RecordID       string    `json:"record_id,omitempty"`
	LastScanAt     time.Time `json:"last_scan_at,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// ShiftSession aggregates the camera slots of one working period.
type ShiftSession struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}
