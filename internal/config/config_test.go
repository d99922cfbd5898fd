package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Migration.BatchSize)
	assert.Equal(t, 5, cfg.Identity.MaxCreateAttempts)
	assert.Equal(t, "AM", cfg.Identity.DefaultRegion)
	assert.Equal(t, time.Minute, cfg.Appointments.PolicyCacheTTL)
	assert.Equal(t, "appointment-events", cfg.Redis.Channel)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("database:\n  host: db.internal\n  name: clinic\nmigration:\n  batch_size: 50\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("DATABASE_NAME", "clinic_test")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "clinic_test", cfg.Database.Name)
	assert.Equal(t, 50, cfg.Migration.BatchSize)
}

func TestLoadRejectsInvalidBatchSize(t *testing.T) {
	t.Setenv("MIGRATION_BATCH_SIZE", "0")
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "batch_size")
}

func TestLoadFlagsDefaults(t *testing.T) {
	flags, err := LoadFlags(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.False(t, flags.AppointmentReadNewModel)
	assert.False(t, flags.AppointmentWriteNewModel)
	assert.False(t, flags.GlobalClinicSeparation)
	assert.True(t, flags.StrictRollout)
}

func TestLoadFlagsFromEnvironment(t *testing.T) {
	t.Setenv("FEATURE_APPOINTMENT_WRITE_NEW_MODEL", "true")
	t.Setenv("FEATURE_PATIENT_RESOLUTION_NEW_MODEL", "1")
	t.Setenv("FEATURE_STRICT_ROLLOUT", "false")

	flags, err := LoadFlags(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, flags.AppointmentWriteNewModel)
	assert.True(t, flags.PatientResolutionNewModel)
	assert.False(t, flags.DoctorResolutionNewModel)
	assert.False(t, flags.StrictRollout)
}

func TestLoadFlagsRejectsGarbage(t *testing.T) {
	t.Setenv("FEATURE_GLOBAL_CLINIC_SEPARATION", "maybe")
	_, err := LoadFlags(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
