package models

import "time"

// ConnState describes the connection health of a camera source.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnLive         ConnState = "live"
	ConnDegraded     ConnState = "degraded"
)

// Camera is a configured video source together with its last observed
// connection state. The capture pipeline is the only writer of the
// state fields.
type Camera struct {
	CameraID    string    `json:"camera_id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Enabled     bool      `json:"enabled"`
	State       ConnState `json:"state"`
	Failures    int       `json:"failures"`
	LastFrameAt time.Time `json:"last_frame_at"`
}
