package errs

import "errors"

var (
	ErrUserType           = errors.New("wrong user type")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrCameraNotFound       = errors.New("camera not found")
	ErrCameraIsNotAvailable = errors.New("camera is not available")

	ErrSessionActive    = errors.New("session already active")
	ErrNoActiveSession  = errors.New("no active session")
	ErrSessionRecording = errors.New("recordings still active")

	ErrSlotNotAssigned         = errors.New("camera is not assigned")
	ErrRecordingStarting       = errors.New("recording is still starting")
	ErrRecordingAborted        = errors.New("recording stopped before it started")
	ErrSlotAlreadyAssigned     = errors.New("camera already assigned")
	ErrSlotBusy                = errors.New("camera is recording another tracking number")
	ErrSlotRecording           = errors.New("cannot unassign while recording")
	ErrDuplicateTrackingNumber = errors.New("tracking number already open on another camera")
	ErrEmployeeAlreadyAssigned = errors.New("employee already assigned to another camera")

	ErrEncoderUnavailable = errors.New("encoder unavailable")
	ErrNoFrames           = errors.New("no frames captured")

	ErrRecordNotFound   = errors.New("record not found")
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmployeeExists   = errors.New("employee already exists")

	ErrWriteToDB = errors.New("failed to write to database")
)
