package featureflag

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
)

func TestRouterReportsEachFlagIndependently(t *testing.T) {
	r := New(config.Flags{DoctorResolutionNewModel: true, GlobalClinicSeparation: true})

	assert.False(t, r.AppointmentReadUsesNewModel())
	assert.False(t, r.AppointmentWriteUsesNewModel())
	assert.True(t, r.DoctorResolutionUsesNewModel())
	assert.False(t, r.PatientResolutionUsesNewModel())
	assert.True(t, r.GlobalClinicSeparationEnabled())
}

func TestValidateStrictRejectsReadBeforeWrite(t *testing.T) {
	r := New(config.Flags{AppointmentReadNewModel: true, StrictRollout: true})
	assert.ErrorIs(t, r.Validate(logger.Nop()), ErrUnsafeRollout)
}

func TestValidateLenientWarns(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf, JSON: true})

	r := New(config.Flags{AppointmentReadNewModel: true})
	assert.NoError(t, r.Validate(log))
	assert.Contains(t, buf.String(), "rollout order")
}

func TestValidateAcceptsWriteFirst(t *testing.T) {
	r := New(config.Flags{AppointmentWriteNewModel: true, StrictRollout: true})
	assert.NoError(t, r.Validate(logger.Nop()))

	r = New(config.Flags{AppointmentWriteNewModel: true, AppointmentReadNewModel: true, StrictRollout: true})
	assert.NoError(t, r.Validate(logger.Nop()))
}

func TestRouterConcurrentReads(t *testing.T) {
	r := New(config.Flags{AppointmentWriteNewModel: true})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, r.AppointmentWriteUsesNewModel())
		}()
	}
	wg.Wait()
}
