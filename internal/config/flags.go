package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Flags are the rollout switches, read once at process start.
type Flags struct {
	AppointmentReadNewModel   bool `envconfig:"APPOINTMENT_READ_NEW_MODEL" default:"false"`
	AppointmentWriteNewModel  bool `envconfig:"APPOINTMENT_WRITE_NEW_MODEL" default:"false"`
	DoctorResolutionNewModel  bool `envconfig:"DOCTOR_RESOLUTION_NEW_MODEL" default:"false"`
	PatientResolutionNewModel bool `envconfig:"PATIENT_RESOLUTION_NEW_MODEL" default:"false"`
	GlobalClinicSeparation    bool `envconfig:"GLOBAL_CLINIC_SEPARATION" default:"false"`
	// StrictRollout turns an unsafe flag combination into a startup error.
	StrictRollout bool `envconfig:"STRICT_ROLLOUT" default:"true"`
}

const flagPrefix = "FEATURE"

// LoadFlags reads FEATURE_* variables, after loading any .env files given
// (".env" when none are). Missing .env files are ignored.
func LoadFlags(envFiles ...string) (Flags, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Flags{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var flags Flags
	if err := envconfig.Process(flagPrefix, &flags); err != nil {
		return Flags{}, fmt.Errorf("failed to read feature flags: %w", err)
	}
	return flags, nil
}
