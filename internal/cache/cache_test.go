package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/test/helper/testlogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreGetInvalidate(t *testing.T) {
	m, err := New(testlogger.New())
	require.NoError(t, err)
	defer m.Close()

	_, found := m.Get("CODE-1")
	assert.False(t, found)

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Store("CODE-1", model.Verdict{Valid: true, Reason: "ok", ExpiresAt: &expires})

	got, found := m.Get("CODE-1")
	require.True(t, found)
	assert.True(t, got.Valid)
	assert.Equal(t, expires, *got.ExpiresAt)

	m.Invalidate("CODE-1")

	_, found = m.Get("CODE-1")
	assert.False(t, found)
}

func sampleRecord() model.LocalActivationRecord {
	expires := "2030-01-01T00:00:00Z"

	return model.LocalActivationRecord{
		IsActivated:         true,
		ActivationCode:      "CODE-1",
		ActivatedByDeviceID: "device-0000000001",
		ActivatedAtISO:      "2024-01-01T00:00:00Z",
		DeviceInfoAtActivation: model.DeviceInfo{
			Hostname: "box",
			PublicIP: "N/A",
		},
		ActualExpiresAtISO:         &expires,
		ValidityDurationFromServer: model.ValidityDuration{Unit: "days", Value: model.IntPtr(30)},
		DeviceLimitFromServer:      2,
	}
}

func TestFileRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "deep", "activation_status.json"), testlogger.New())

	_, err := f.Load()
	require.ErrorIs(t, err, ErrNoLocalRecord)

	rec := sampleRecord()
	require.NoError(t, f.Save(rec))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileUsesWireFieldNames(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "activation_status.json"), testlogger.New())
	require.NoError(t, f.Save(sampleRecord()))

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)

	for _, field := range []string{
		`"is_activated"`, `"activation_code"`, `"activated_by_device_id"`, `"activated_at_iso"`,
		`"device_info_at_activation"`, `"actualExpiresAt_iso"`, `"validityDuration_from_server"`,
		`"deviceLimit_from_server"`,
	} {
		assert.Contains(t, string(data), field)
	}
}

func TestFileLoadIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activation_status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"is_activated":true,"activation_code":"C","extra":42}`), 0o600))

	got, err := NewFile(path, testlogger.New()).Load()
	require.NoError(t, err)
	assert.True(t, got.IsActivated)
	assert.Equal(t, "C", got.ActivationCode)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activation_status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"is_activated": tr`), 0o600))

	logger := testlogger.New()
	_, err := NewFile(path, logger).Load()

	require.ErrorIs(t, err, ErrCorruptLocalRecord)
	assert.True(t, logger.Contains("WARN", "corrupt"))
}

func TestFileClearIsIdempotent(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "activation_status.json"), testlogger.New())
	require.NoError(t, f.Save(sampleRecord()))

	require.NoError(t, f.Clear())
	require.NoError(t, f.Clear())

	_, err := f.Load()
	assert.ErrorIs(t, err, ErrNoLocalRecord)
}
