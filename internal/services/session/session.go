package session

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zanzhit/packing_dashboard/internal/domain/constants"
	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// Service is the session registry: the process-wide table of camera slots
// and the sole arbiter of scan, assign and unassign transitions. All slot
// state lives behind one mutex; recorder calls and any other I/O happen
// strictly outside of it.
type Service struct {
	log      *slog.Logger
	recorder Recorder
	cameras  CameraDirectory
	events   EventEmitter

	mu      sync.Mutex
	session *models.ShiftSession
	slots   map[string]*models.CameraSlot
	arming  map[string]bool
}

type Recorder interface {
	Arm(rec models.PackingRecord) (models.PackingRecord, error)
	Finalize(recordID string) (models.PackingRecord, error)
	Cancel(recordID string) error
	Fail(recordID, reason string) (models.PackingRecord, error)
}

type CameraDirectory interface {
	Camera(cameraID string) (models.Camera, error)
	Cameras() []models.Camera
}

type EventEmitter interface {
	Emit(event string, payload any)
}

// ScanResult tells the scanner operator what a scan did.
type ScanResult struct {
	Action string               `json:"action"`
	Slot   models.CameraSlot    `json:"slot"`
	Record models.PackingRecord `json:"record"`
}

const (
	ActionStarted  = "started"
	ActionFinished = "finished"
)

func New(log *slog.Logger, recorder Recorder, cameras CameraDirectory, events EventEmitter) *Service {
	return &Service{
		log:      log,
		recorder: recorder,
		cameras:  cameras,
		events:   events,
		slots:    make(map[string]*models.CameraSlot),
		arming:   make(map[string]bool),
	}
}

// CreateSession opens a new shift. Only one shift may be active at a time.
func (s *Service) CreateSession(createdBy string) (models.ShiftSession, error) {
	const op = "services.session.CreateSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return models.ShiftSession{}, fmt.Errorf("%s: %w", op, errs.ErrSessionActive)
	}

	s.session = &models.ShiftSession{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
	s.slots = make(map[string]*models.CameraSlot)

	s.log.Info("shift session created",
		slog.String("op", op),
		slog.String("session_id", s.session.SessionID),
		slog.String("created_by", createdBy),
	)

	s.events.Emit("session_created", *s.session)

	return *s.session, nil
}

// EndSession closes the shift and clears every slot. It refuses while any
// slot is still recording; the operator has to finish or emergency-stop
// first, so footage is never dropped implicitly.
func (s *Service) EndSession() error {
	const op = "services.session.EndSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return fmt.Errorf("%s: %w", op, errs.ErrNoActiveSession)
	}

	for _, slot := range s.slots {
		if slot.Activity == models.ActivityRecording {
			return fmt.Errorf("%s: %w", op, errs.ErrSessionRecording)
		}
	}

	sessionID := s.session.SessionID
	s.session = nil
	s.slots = make(map[string]*models.CameraSlot)

	s.log.Info("shift session ended", slog.String("op", op), slog.String("session_id", sessionID))

	s.events.Emit("session_ended", map[string]any{"session_id": sessionID})

	return nil
}

// Assign binds a camera to an employee for the shift. One camera per
// employee, one employee per camera.
func (s *Service) Assign(cameraID, employee, platform string) (models.CameraSlot, error) {
	const op = "services.session.Assign"

	if _, err := s.cameras.Camera(cameraID); err != nil {
		return models.CameraSlot{}, fmt.Errorf("%s: %w", op, err)
	}

	platform = strings.ToUpper(strings.TrimSpace(platform))
	if platform == "" || !slices.Contains(constants.Platforms, platform) {
		platform = constants.DefaultPlatform
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrNoActiveSession)
	}

	if slot, ok := s.slots[cameraID]; ok {
		if slot.Activity == models.ActivityRecording {
			return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrSlotBusy)
		}
		if slot.Employee != "" && slot.Employee != employee {
			return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrSlotAlreadyAssigned)
		}
	}

	for id, slot := range s.slots {
		if id != cameraID && slot.Employee == employee {
			return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrEmployeeAlreadyAssigned)
		}
	}

	slot := &models.CameraSlot{
		CameraID: cameraID,
		Employee: employee,
		Platform: platform,
		Activity: models.ActivityIdle,
	}
	s.slots[cameraID] = slot

	s.log.Info("camera assigned",
		slog.String("op", op),
		slog.String("camera_id", cameraID),
		slog.String("employee", employee),
		slog.String("platform", platform),
	)

	s.events.Emit("slot_assigned", *slot)

	return *slot, nil
}

// Unassign releases a camera slot. Rejected while the slot records so an
// in-flight job can never lose its owner mid-write.
func (s *Service) Unassign(cameraID string) error {
	const op = "services.session.Unassign"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return fmt.Errorf("%s: %w", op, errs.ErrNoActiveSession)
	}

	slot, ok := s.slots[cameraID]
	if !ok {
		return fmt.Errorf("%s: %w", op, errs.ErrSlotNotAssigned)
	}

	if slot.Activity == models.ActivityRecording {
		return fmt.Errorf("%s: %w", op, errs.ErrSlotRecording)
	}

	delete(s.slots, cameraID)

	s.log.Info("camera unassigned", slog.String("op", op), slog.String("camera_id", cameraID))

	s.events.Emit("slot_unassigned", map[string]any{"camera_id": cameraID})

	return nil
}

// Scan is the barcode state machine. First scan of a tracking number on an
// idle slot starts a recording, scanning the same number again finishes it.
// All conflicting scans are rejected synchronously; nothing is queued.
func (s *Service) Scan(cameraID, trackingNumber string) (ScanResult, error) {
	const op = "services.session.Scan"

	log := s.log.With(
		slog.String("op", op),
		slog.String("camera_id", cameraID),
		slog.String("tracking_number", trackingNumber),
	)

	trackingNumber = strings.ToUpper(strings.TrimSpace(trackingNumber))
	if trackingNumber == "" {
		return ScanResult{}, fmt.Errorf("%s: empty tracking number", op)
	}

	s.mu.Lock()

	if s.session == nil {
		s.mu.Unlock()
		return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrNoActiveSession)
	}

	slot, ok := s.slots[cameraID]
	if !ok {
		s.mu.Unlock()
		return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrSlotNotAssigned)
	}

	switch slot.Activity {
	case models.ActivityError:
		s.mu.Unlock()
		return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrCameraIsNotAvailable)

	case models.ActivityRecording:
		if s.arming[cameraID] {
			// the recorder has not registered the job yet, a finish scan
			// here would orphan it
			s.mu.Unlock()
			return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrRecordingStarting)
		}

		if slot.TrackingNumber != trackingNumber {
			s.mu.Unlock()
			return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrSlotBusy)
		}

		recordID := slot.RecordID
		snapshot := s.clearRecordingLocked(slot)
		s.mu.Unlock()

		rec, err := s.recorder.Finalize(recordID)
		if err != nil {
			log.Error("failed to finalize recording", sl.Err(err))

			return ScanResult{Action: ActionFinished, Slot: snapshot, Record: rec}, fmt.Errorf("%s: %w", op, err)
		}

		if rec.Status == models.StatusFailed {
			s.events.Emit("recording_failed", recordingEvent(rec))

			log.Warn("recording finished without footage", slog.String("record_id", rec.RecordID))

			return ScanResult{Action: ActionFinished, Slot: snapshot, Record: rec}, nil
		}

		s.events.Emit("recording_stopped", recordingEvent(rec))

		log.Info("recording finished", slog.String("record_id", rec.RecordID))

		return ScanResult{Action: ActionFinished, Slot: snapshot, Record: rec}, nil

	default: // idle
		for id, other := range s.slots {
			if id != cameraID && other.Activity == models.ActivityRecording && other.TrackingNumber == trackingNumber {
				s.mu.Unlock()
				return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrDuplicateTrackingNumber)
			}
		}

		rec := models.PackingRecord{
			RecordID:       uuid.NewString(),
			TrackingNumber: trackingNumber,
			Employee:       slot.Employee,
			Platform:       slot.Platform,
			CameraID:       cameraID,
			StartTime:      time.Now(),
			Status:         models.StatusRecording,
		}

		slot.Activity = models.ActivityRecording
		slot.TrackingNumber = trackingNumber
		slot.RecordID = rec.RecordID
		slot.LastScanAt = rec.StartTime
		snapshot := *slot
		s.arming[cameraID] = true
		s.mu.Unlock()

		rec, err := s.recorder.Arm(rec)

		s.mu.Lock()
		delete(s.arming, cameraID)
		// the slot may have been swept meanwhile; only our own claim counts
		cur, claimed := s.slots[cameraID]
		claimed = claimed && cur.RecordID == rec.RecordID

		if err != nil {
			if claimed {
				s.clearRecordingLocked(cur)
			}
			s.mu.Unlock()

			log.Error("failed to arm recording", sl.Err(err))

			return ScanResult{}, fmt.Errorf("%s: %w", op, err)
		}

		if !claimed {
			s.mu.Unlock()

			// a sweep cleared the slot while the recorder was arming; the
			// job is live but ownerless, so discard it
			if cerr := s.recorder.Cancel(rec.RecordID); cerr != nil {
				log.Error("failed to cancel ownerless recording", sl.Err(cerr))
			}

			log.Warn("slot swept during arm, recording discarded", slog.String("record_id", rec.RecordID))

			return ScanResult{}, fmt.Errorf("%s: %w", op, errs.ErrRecordingAborted)
		}
		s.mu.Unlock()

		s.events.Emit("recording_started", recordingEvent(rec))

		log.Info("recording started", slog.String("record_id", rec.RecordID))

		snapshot.RecordID = rec.RecordID

		return ScanResult{Action: ActionStarted, Slot: snapshot, Record: rec}, nil
	}
}

// EmergencyStopAll cancels every active recording at once. Slots are swept
// to idle under the lock so no concurrent scan can slip a new recording
// into the sweep; the actual cancels run after the lock is released.
func (s *Service) EmergencyStopAll() (int, error) {
	const op = "services.session.EmergencyStopAll"

	s.mu.Lock()

	stopped := 0
	var recordIDs []string
	for id, slot := range s.slots {
		if slot.Activity != models.ActivityRecording {
			continue
		}

		stopped++

		if s.arming[id] {
			// not registered with the recorder yet; clearing the claim
			// makes the arming scan discard its own job once Arm returns
			s.clearRecordingLocked(slot)
			continue
		}

		recordIDs = append(recordIDs, slot.RecordID)
		s.clearRecordingLocked(slot)
	}

	s.mu.Unlock()

	for _, id := range recordIDs {
		if err := s.recorder.Cancel(id); err != nil {
			s.log.Error("failed to cancel recording", slog.String("op", op), sl.Err(err), slog.String("record_id", id))
		}
	}

	if stopped > 0 {
		s.log.Warn("emergency stop", slog.String("op", op), slog.Int("cancelled", stopped))
		s.events.Emit("emergency_stop", map[string]any{"cancelled": stopped})
	}

	return stopped, nil
}

// Teardown finalizes every in-flight recording during graceful shutdown.
// Unlike EmergencyStopAll, captured footage is kept.
func (s *Service) Teardown() {
	const op = "services.session.Teardown"

	s.mu.Lock()

	var recordIDs []string
	for id, slot := range s.slots {
		if slot.Activity != models.ActivityRecording {
			continue
		}

		if s.arming[id] {
			// the arming scan discards its own job once Arm returns
			s.clearRecordingLocked(slot)
			continue
		}

		recordIDs = append(recordIDs, slot.RecordID)
		s.clearRecordingLocked(slot)
	}

	s.mu.Unlock()

	for _, id := range recordIDs {
		if _, err := s.recorder.Finalize(id); err != nil {
			s.log.Error("failed to finalize recording on shutdown", slog.String("op", op), sl.Err(err), slog.String("record_id", id))
		}
	}

	if len(recordIDs) > 0 {
		s.log.Info("active recordings flushed", slog.String("op", op), slog.Int("finalized", len(recordIDs)))
	}
}

// ResetSlot returns an errored slot to idle after the operator confirmed
// the camera is healthy again.
func (s *Service) ResetSlot(cameraID string) (models.CameraSlot, error) {
	const op = "services.session.ResetSlot"

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[cameraID]
	if !ok {
		return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrSlotNotAssigned)
	}

	if slot.Activity == models.ActivityRecording {
		return models.CameraSlot{}, fmt.Errorf("%s: %w", op, errs.ErrSlotRecording)
	}

	slot.Activity = models.ActivityIdle
	slot.TrackingNumber = ""
	slot.RecordID = ""
	slot.ErrorMessage = ""

	s.log.Info("slot reset", slog.String("op", op), slog.String("camera_id", cameraID))

	s.events.Emit("slot_reset", *slot)

	return *slot, nil
}

// Slots returns a snapshot of all assigned slots.
func (s *Service) Slots() []models.CameraSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CameraSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, *slot)
	}

	slices.SortFunc(out, func(a, b models.CameraSlot) int {
		return strings.Compare(a.CameraID, b.CameraID)
	})

	return out
}

// Session returns the active shift, if any.
func (s *Service) Session() (models.ShiftSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return models.ShiftSession{}, false
	}

	return *s.session, true
}

// StatusSnapshot is the periodic full-state document broadcast to
// dashboards. Viewers treat it as authoritative.
type StatusSnapshot struct {
	Session *models.ShiftSession `json:"session,omitempty"`
	Slots   []models.CameraSlot  `json:"slots"`
	Cameras []models.Camera      `json:"cameras"`
}

func (s *Service) Snapshot() StatusSnapshot {
	snap := StatusSnapshot{
		Slots:   s.Slots(),
		Cameras: s.cameras.Cameras(),
	}

	if sess, ok := s.Session(); ok {
		snap.Session = &sess
	}

	return snap
}

// OnCameraState reacts to pipeline state changes. A camera that trips its
// failure threshold takes its slot to error, and an in-flight recording on
// it is finalized as failed with the partial footage kept.
func (s *Service) OnCameraState(cameraID string, state models.ConnState) {
	const op = "services.session.OnCameraState"

	switch state {
	case models.ConnLive:
		s.events.Emit("camera_connected", map[string]any{"camera_id": cameraID})
		return
	case models.ConnDisconnected:
	default:
		return
	}

	s.events.Emit("camera_disconnected", map[string]any{"camera_id": cameraID})

	s.mu.Lock()

	slot, ok := s.slots[cameraID]
	if !ok {
		s.mu.Unlock()
		return
	}

	recordID := slot.RecordID
	wasRecording := slot.Activity == models.ActivityRecording
	wasArming := s.arming[cameraID]

	slot.Activity = models.ActivityError
	slot.ErrorMessage = "camera disconnected"
	slot.TrackingNumber = ""
	slot.RecordID = ""

	s.mu.Unlock()

	if !wasRecording {
		return
	}

	if wasArming {
		// the job is not registered yet; the arming scan sees its claim
		// gone and discards it
		return
	}

	rec, err := s.recorder.Fail(recordID, "camera disconnected")
	if err != nil {
		s.log.Error("failed to fail recording", slog.String("op", op), sl.Err(err), slog.String("record_id", recordID))
		return
	}

	s.events.Emit("recording_failed", recordingEvent(rec))

	s.log.Warn("recording failed on camera loss",
		slog.String("op", op),
		slog.String("camera_id", cameraID),
		slog.String("record_id", recordID),
	)
}

// clearRecordingLocked returns a slot to idle and reports its final state.
// Caller holds s.mu.
func (s *Service) clearRecordingLocked(slot *models.CameraSlot) models.CameraSlot {
	slot.Activity = models.ActivityIdle
	slot.TrackingNumber = ""
	slot.RecordID = ""

	return *slot
}

func recordingEvent(rec models.PackingRecord) map[string]any {
	return map[string]any{
		"record_id":       rec.RecordID,
		"camera_id":       rec.CameraID,
		"tracking_number": rec.TrackingNumber,
		"employee":        rec.Employee,
		"platform":        rec.Platform,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
}
