package records

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	recordstorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/records"
)

type fakeProvider struct {
	recs       []models.PackingRecord
	lastFilter recordstorage.ListFilter
}

func (p *fakeProvider) Record(recordID string) (models.PackingRecord, error) {
	return p.recs[0], nil
}

func (p *fakeProvider) List(f recordstorage.ListFilter) ([]models.PackingRecord, error) {
	p.lastFilter = f

	return p.recs, nil
}

func (p *fakeProvider) Count(_ recordstorage.ListFilter) (int, error) {
	return len(p.recs), nil
}

func (p *fakeProvider) TodayStats() (models.TodayStats, error) {
	return models.TodayStats{Total: len(p.recs)}, nil
}

func testService(recs ...models.PackingRecord) (*RecordService, *fakeProvider) {
	provider := &fakeProvider{recs: recs}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, provider), provider
}

func TestList_ClampsPageSize(t *testing.T) {
	svc, provider := testService()

	_, _, err := svc.List(recordstorage.ListFilter{Limit: 100000})
	require.NoError(t, err)
	assert.Equal(t, 50, provider.lastFilter.Limit)

	_, _, err = svc.List(recordstorage.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 50, provider.lastFilter.Limit)

	_, _, err = svc.List(recordstorage.ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, provider.lastFilter.Limit)
}

func TestExportCSV(t *testing.T) {
	stop := time.Date(2026, 9, 1, 10, 5, 0, 0, time.UTC)
	svc, provider := testService(models.PackingRecord{
		RecordID:        "rec-1",
		TrackingNumber:  "RESI001",
		Employee:        "Budi",
		Platform:        "SHOPEE",
		CameraID:        "cam-1",
		StartTime:       time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		StopTime:        &stop,
		DurationSeconds: 300,
		FilePath:        "/recordings/x.mp4",
		FileSizeKB:      2048,
		Status:          models.StatusCompleted,
	})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(&buf, recordstorage.ListFilter{Limit: 10, Offset: 5}))

	// export ignores pagination
	assert.Zero(t, provider.lastFilter.Limit)
	assert.Zero(t, provider.lastFilter.Offset)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "tracking_number")
	assert.Contains(t, lines[1], "RESI001")
	assert.Contains(t, lines[1], "Budi")
	assert.Contains(t, lines[1], "300.0")
}
