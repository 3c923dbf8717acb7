package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

func TestRecordingDir_Layout(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)

	dir, err := recordingDir(root, start, "SHOPEE", "Budi Santoso")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "2026-09-01", "SHOPEE", "Budi Santoso"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCleanPathPart(t *testing.T) {
	assert.Equal(t, "Budi Santoso", cleanPathPart(" Budi Santoso "))
	assert.Equal(t, "etcpasswd", cleanPathPart("../../etc/passwd"))
	assert.Equal(t, "SHOPEE", cleanPathPart("SHOPEE"))
	assert.Equal(t, "RESI_001-A", cleanPathPart("RESI_001-A"))
}

func TestWriteMetadata_Sidecar(t *testing.T) {
	dir := t.TempDir()
	stop := time.Date(2026, 9, 1, 10, 5, 0, 0, time.UTC)

	rec := models.PackingRecord{
		TrackingNumber:  "RESI001",
		Employee:        "Budi",
		Platform:        "SHOPEE",
		CameraID:        "cam-1",
		StartTime:       time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		StopTime:        &stop,
		DurationSeconds: 300,
		FilePath:        filepath.Join(dir, "RESI001_1.mp4"),
		FileSizeKB:      2048,
		SHA256:          "abc123",
	}

	require.NoError(t, writeMetadata(rec))

	data, err := os.ReadFile(filepath.Join(dir, "RESI001_1.json"))
	require.NoError(t, err)

	var meta models.RecordMetadata
	require.NoError(t, json.Unmarshal(data, &meta))

	assert.Equal(t, "RESI001", meta.TrackingNumber)
	assert.Equal(t, "cam-1", meta.CameraID)
	assert.Equal(t, 300.0, meta.DurationSeconds)
	assert.Equal(t, "abc123", meta.SHA256)
	assert.NotEmpty(t, meta.StartTime)
}
