package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

type fakeRecorder struct {
	mu             sync.Mutex
	armErr         error
	finalizeStatus string
	armEntered     chan struct{}
	armGate        chan struct{}
	armed          []models.PackingRecord
	finalized      []string
	cancelled      []string
	failed         []string
}

func (r *fakeRecorder) Arm(rec models.PackingRecord) (models.PackingRecord, error) {
	if r.armEntered != nil {
		r.armEntered <- struct{}{}
	}
	if r.armGate != nil {
		<-r.armGate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armErr != nil {
		return rec, r.armErr
	}
	r.armed = append(r.armed, rec)

	return rec, nil
}

func (r *fakeRecorder) Finalize(recordID string) (models.PackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, recordID)

	status := r.finalizeStatus
	if status == "" {
		status = models.StatusCompleted
	}

	return models.PackingRecord{RecordID: recordID, Status: status}, nil
}

func (r *fakeRecorder) Cancel(recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, recordID)

	return nil
}

func (r *fakeRecorder) Fail(recordID, _ string) (models.PackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, recordID)

	return models.PackingRecord{RecordID: recordID, Status: models.StatusFailed}, nil
}

type fakeCameras struct {
	ids []string
}

func (c *fakeCameras) Camera(cameraID string) (models.Camera, error) {
	for _, id := range c.ids {
		if id == cameraID {
			return models.Camera{CameraID: id, State: models.ConnLive}, nil
		}
	}

	return models.Camera{}, errs.ErrCameraNotFound
}

func (c *fakeCameras) Cameras() []models.Camera {
	out := make([]models.Camera, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, models.Camera{CameraID: id})
	}

	return out
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEmitter) Emit(event string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *fakeEmitter) has(event string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range e.events {
		if ev == event {
			return true
		}
	}

	return false
}

func newRegistry(t *testing.T, cameraIDs ...string) (*Service, *fakeRecorder, *fakeEmitter) {
	t.Helper()

	rec := &fakeRecorder{}
	emitter := &fakeEmitter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := New(log, rec, &fakeCameras{ids: cameraIDs}, emitter)

	_, err := svc.CreateSession("admin@test")
	require.NoError(t, err)

	return svc, rec, emitter
}

func slotByID(t *testing.T, svc *Service, cameraID string) models.CameraSlot {
	t.Helper()

	for _, slot := range svc.Slots() {
		if slot.CameraID == cameraID {
			return slot
		}
	}

	t.Fatalf("slot %s not found", cameraID)

	return models.CameraSlot{}
}

func TestCreateSession_OnlyOneActive(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1")

	_, err := svc.CreateSession("admin@test")
	assert.ErrorIs(t, err, errs.ErrSessionActive)

	require.NoError(t, svc.EndSession())

	_, err = svc.CreateSession("admin@test")
	assert.NoError(t, err)
}

func TestAssign_Rules(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1", "cam-2")

	slot, err := svc.Assign("cam-1", "Budi", "shopee")
	require.NoError(t, err)
	assert.Equal(t, "SHOPEE", slot.Platform)
	assert.Equal(t, models.ActivityIdle, slot.Activity)

	// one employee, one camera
	_, err = svc.Assign("cam-2", "Budi", "SHOPEE")
	assert.ErrorIs(t, err, errs.ErrEmployeeAlreadyAssigned)

	// occupied camera refuses another employee
	_, err = svc.Assign("cam-1", "Sari", "TOKOPEDIA")
	assert.ErrorIs(t, err, errs.ErrSlotAlreadyAssigned)

	// unknown camera
	_, err = svc.Assign("cam-404", "Sari", "")
	assert.ErrorIs(t, err, errs.ErrCameraNotFound)

	// unknown platform falls back to the default
	slot, err = svc.Assign("cam-2", "Sari", "whatever")
	require.NoError(t, err)
	assert.Equal(t, "LAINNYA", slot.Platform)
}

func TestScan_StartFinishCycle(t *testing.T) {
	svc, rec, emitter := newRegistry(t, "cam-1")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	result, err := svc.Scan("cam-1", "RESI002")
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, result.Action)
	assert.Equal(t, "RESI002", result.Record.TrackingNumber)
	assert.Equal(t, models.ActivityRecording, slotByID(t, svc, "cam-1").Activity)
	assert.True(t, emitter.has("recording_started"))

	firstID := result.Record.RecordID

	// same number again finishes exactly that job
	result, err = svc.Scan("cam-1", "RESI002")
	require.NoError(t, err)
	assert.Equal(t, ActionFinished, result.Action)
	assert.Equal(t, models.ActivityIdle, slotByID(t, svc, "cam-1").Activity)
	assert.Empty(t, slotByID(t, svc, "cam-1").TrackingNumber)
	assert.True(t, emitter.has("recording_stopped"))

	require.Len(t, rec.finalized, 1)
	assert.Equal(t, firstID, rec.finalized[0])

	// a third scan starts a new, distinct job
	result, err = svc.Scan("cam-1", "RESI002")
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, result.Action)
	assert.NotEqual(t, firstID, result.Record.RecordID)
}

func TestScan_DuplicateTrackingNumberRejected(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1", "cam-2")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)
	_, err = svc.Assign("cam-2", "Sari", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	_, err = svc.Scan("cam-2", "RESI001")
	assert.ErrorIs(t, err, errs.ErrDuplicateTrackingNumber)

	// camera 2 stays idle and untouched
	slot := slotByID(t, svc, "cam-2")
	assert.Equal(t, models.ActivityIdle, slot.Activity)
	assert.Empty(t, slot.TrackingNumber)

	require.Len(t, rec.armed, 1)
}

func TestScan_DifferentNumberWhileRecording(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI999")
	assert.ErrorIs(t, err, errs.ErrSlotBusy)

	// the original recording is unaffected
	slot := slotByID(t, svc, "cam-1")
	assert.Equal(t, models.ActivityRecording, slot.Activity)
	assert.Equal(t, "RESI001", slot.TrackingNumber)
}

func TestScan_UnassignedAndErrorSlots(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1")

	_, err := svc.Scan("cam-1", "RESI001")
	assert.ErrorIs(t, err, errs.ErrSlotNotAssigned)

	_, err = svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	svc.OnCameraState("cam-1", models.ConnDisconnected)

	_, err = svc.Scan("cam-1", "RESI001")
	assert.ErrorIs(t, err, errs.ErrCameraIsNotAvailable)

	// admin reset brings it back
	_, err = svc.ResetSlot("cam-1")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	assert.NoError(t, err)
}

func TestScan_ArmFailureRevertsSlot(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1")
	rec.armErr = errs.ErrEncoderUnavailable

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	assert.ErrorIs(t, err, errs.ErrEncoderUnavailable)

	// the slot never shows a false "recording" state
	slot := slotByID(t, svc, "cam-1")
	assert.Equal(t, models.ActivityIdle, slot.Activity)
	assert.Empty(t, slot.TrackingNumber)

	// and the same number can be scanned again once the encoder recovers
	rec.armErr = nil
	_, err = svc.Scan("cam-1", "RESI001")
	assert.NoError(t, err)
}

func TestScan_FinishDuringArmRejected(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1")
	rec.armEntered = make(chan struct{}, 4)
	rec.armGate = make(chan struct{})

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		_, err := svc.Scan("cam-1", "RESI001")
		started <- err
	}()

	<-rec.armEntered

	// double-triggered scanner gun fires the same barcode before the
	// recorder registered the job
	_, err = svc.Scan("cam-1", "RESI001")
	assert.ErrorIs(t, err, errs.ErrRecordingStarting)
	assert.Empty(t, rec.finalized)

	close(rec.armGate)
	require.NoError(t, <-started)

	// the slot records normally and the finish scan works now
	assert.Equal(t, models.ActivityRecording, slotByID(t, svc, "cam-1").Activity)

	result, err := svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)
	assert.Equal(t, ActionFinished, result.Action)
	require.Len(t, rec.finalized, 1)
}

func TestEmergencyStop_DuringArmDiscardsJob(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1")
	rec.armEntered = make(chan struct{}, 4)
	rec.armGate = make(chan struct{})

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		_, err := svc.Scan("cam-1", "RESI001")
		started <- err
	}()

	<-rec.armEntered

	stopped, err := svc.EmergencyStopAll()
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)

	close(rec.armGate)
	assert.ErrorIs(t, <-started, errs.ErrRecordingAborted)

	// the ownerless job was cancelled by the scan itself, not left running
	require.Len(t, rec.cancelled, 1)
	assert.Equal(t, models.ActivityIdle, slotByID(t, svc, "cam-1").Activity)

	// and the camera is usable again
	_, err = svc.Scan("cam-1", "RESI002")
	assert.NoError(t, err)
}

func TestOnCameraState_DuringArmDiscardsJob(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1")
	rec.armEntered = make(chan struct{}, 4)
	rec.armGate = make(chan struct{})

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		_, err := svc.Scan("cam-1", "RESI001")
		started <- err
	}()

	<-rec.armEntered

	svc.OnCameraState("cam-1", models.ConnDisconnected)

	// no Fail call for a job the recorder never registered
	assert.Empty(t, rec.failed)

	close(rec.armGate)
	assert.ErrorIs(t, <-started, errs.ErrRecordingAborted)

	require.Len(t, rec.cancelled, 1)
	assert.Equal(t, models.ActivityError, slotByID(t, svc, "cam-1").Activity)
}

func TestScan_ZeroFrameFinishEmitsFailure(t *testing.T) {
	svc, rec, emitter := newRegistry(t, "cam-1")
	rec.finalizeStatus = models.StatusFailed

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	result, err := svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Record.Status)

	assert.True(t, emitter.has("recording_failed"))
	assert.False(t, emitter.has("recording_stopped"))
}

func TestUnassign_RejectedWhileRecording(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	err = svc.Unassign("cam-1")
	assert.ErrorIs(t, err, errs.ErrSlotRecording)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	assert.NoError(t, svc.Unassign("cam-1"))
	assert.Empty(t, svc.Slots())
}

func TestEndSession_RefusesWhileRecording(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	err = svc.EndSession()
	assert.ErrorIs(t, err, errs.ErrSessionRecording)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	assert.NoError(t, svc.EndSession())

	err = svc.EndSession()
	assert.ErrorIs(t, err, errs.ErrNoActiveSession)
}

func TestEmergencyStopAll(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1", "cam-2", "cam-3")

	for i, emp := range []string{"Budi", "Sari", "Agus"} {
		cam := fmt.Sprintf("cam-%d", i+1)

		_, err := svc.Assign(cam, emp, "SHOPEE")
		require.NoError(t, err)

		_, err = svc.Scan(cam, fmt.Sprintf("RESI00%d", i+1))
		require.NoError(t, err)
	}

	cancelled, err := svc.EmergencyStopAll()
	require.NoError(t, err)
	assert.Equal(t, 3, cancelled)

	require.Len(t, rec.cancelled, 3)

	for _, slot := range svc.Slots() {
		assert.Equal(t, models.ActivityIdle, slot.Activity)
		assert.Empty(t, slot.TrackingNumber)
	}

	// nothing left to stop
	cancelled, err = svc.EmergencyStopAll()
	require.NoError(t, err)
	assert.Zero(t, cancelled)
}

func TestOnCameraState_FailsInFlightRecording(t *testing.T) {
	svc, rec, emitter := newRegistry(t, "cam-1")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	result, err := svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	svc.OnCameraState("cam-1", models.ConnDisconnected)

	slot := slotByID(t, svc, "cam-1")
	assert.Equal(t, models.ActivityError, slot.Activity)

	require.Len(t, rec.failed, 1)
	assert.Equal(t, result.Record.RecordID, rec.failed[0])
	assert.True(t, emitter.has("camera_disconnected"))
	assert.True(t, emitter.has("recording_failed"))
}

func TestTeardown_FinalizesActiveRecordings(t *testing.T) {
	svc, rec, _ := newRegistry(t, "cam-1", "cam-2")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)
	_, err = svc.Assign("cam-2", "Sari", "SHOPEE")
	require.NoError(t, err)

	_, err = svc.Scan("cam-1", "RESI001")
	require.NoError(t, err)

	svc.Teardown()

	require.Len(t, rec.finalized, 1)
	assert.Empty(t, rec.cancelled)
	assert.Equal(t, models.ActivityIdle, slotByID(t, svc, "cam-1").Activity)
}

func TestSnapshot(t *testing.T) {
	svc, _, _ := newRegistry(t, "cam-1", "cam-2")

	_, err := svc.Assign("cam-1", "Budi", "SHOPEE")
	require.NoError(t, err)

	snap := svc.Snapshot()
	require.NotNil(t, snap.Session)
	assert.Len(t, snap.Slots, 1)
	assert.Len(t, snap.Cameras, 2)
}

func TestScan_RequiresSession(t *testing.T) {
	rec := &fakeRecorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(log, rec, &fakeCameras{ids: []string{"cam-1"}}, &fakeEmitter{})

	_, err := svc.Scan("cam-1", "RESI001")
	assert.ErrorIs(t, err, errs.ErrNoActiveSession)

	_, err = svc.Assign("cam-1", "Budi", "SHOPEE")
	assert.ErrorIs(t, err, errs.ErrNoActiveSession)

	err = svc.Unassign("cam-1")
	assert.True(t, errors.Is(err, errs.ErrNoActiveSession))
}
