package appointment_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository/memory"
	"github.com/medledger/registry-api/internal/service/appointment"
	"github.com/medledger/registry-api/internal/service/identity"
	"github.com/medledger/registry-api/internal/service/patient"
	apperrors "github.com/medledger/registry-api/pkg/errors"
	"github.com/medledger/registry-api/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type fixture struct {
	store *memory.Store
	svc   *appointment.Service
}

// newFixture seeds a doctor and a registered patient.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore("admin")
	log := testLogger()

	ids := identity.NewService(store, log)
	require.NoError(t, ids.RegisterDoctor(ctx, "admin", "dr-house"))

	pats := patient.NewService(store, log)
	_, err := pats.Register(ctx, "alice", &model.RegisterPatientRequest{Name: "Alice", Age: 34})
	require.NoError(t, err)

	return fixture{store: store, svc: appointment.NewService(store, log)}
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	id, err := f.svc.Schedule(ctx, "alice", "dr-house", at)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	apt, err := f.svc.Get(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, model.Identity("alice"), apt.Patient)
	assert.Equal(t, model.Identity("dr-house"), apt.Doctor)
	assert.Equal(t, at, apt.ScheduledTime)
	assert.False(t, apt.Confirmed)

	ids, err := f.svc.ListForPatient(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, ids)

	// IDs increase by one per successful schedule.
	id2, err := f.svc.Schedule(ctx, "alice", "dr-house", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id2)
}

func TestScheduleRequiresPatient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Now().Add(24 * time.Hour)

	for _, caller := range []model.Identity{"stranger", "dr-house", "admin"} {
		_, err := f.svc.Schedule(ctx, caller, "dr-house", at)
		assert.Equal(t, apperrors.ErrAccessDenied, apperrors.CodeOf(err), "caller %s", caller)
	}
}

func TestScheduleWithUnregisteredDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Now().Add(24 * time.Hour)

	_, err := f.svc.Schedule(ctx, "alice", "not-a-doctor", at)
	assert.Equal(t, apperrors.ErrDoctorNotRegistered, apperrors.CodeOf(err))

	// Scheduling with another patient as "doctor" fails the same way.
	_, err = f.svc.Schedule(ctx, "alice", "alice", at)
	assert.Equal(t, apperrors.ErrDoctorNotRegistered, apperrors.CodeOf(err))

	// The failed attempts consumed no IDs.
	id, err := f.svc.Schedule(ctx, "alice", "dr-house", at)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.Schedule(ctx, "alice", "dr-house", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	require.NoError(t, f.svc.Confirm(ctx, "dr-house", id))

	apt, err := f.svc.Get(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, apt.Confirmed)

	// Confirming twice is rejected.
	err = f.svc.Confirm(ctx, "dr-house", id)
	assert.Equal(t, apperrors.ErrAlreadyConfirmed, apperrors.CodeOf(err))
}

func TestConfirmByWrongDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ids := identity.NewService(f.store, testLogger())
	require.NoError(t, ids.RegisterDoctor(ctx, "admin", "dr-wilson"))

	id, err := f.svc.Schedule(ctx, "alice", "dr-house", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	err = f.svc.Confirm(ctx, "dr-wilson", id)
	assert.Equal(t, apperrors.ErrNotAssignedDoctor, apperrors.CodeOf(err))

	apt, err := f.svc.Get(ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, apt.Confirmed)
}

func TestConfirmGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.Schedule(ctx, "alice", "dr-house", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	// Non-doctors cannot confirm, not even the patient.
	err = f.svc.Confirm(ctx, "alice", id)
	assert.Equal(t, apperrors.ErrAccessDenied, apperrors.CodeOf(err))

	// Unknown appointment IDs are reported as missing.
	err = f.svc.Confirm(ctx, "dr-house", 42)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestScheduleEmitsEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.Schedule(ctx, "alice", "dr-house", time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, "dr-house", id))

	events, err := f.store.PendingEvents(ctx, 10)
	require.NoError(t, err)

	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, model.EventAppointmentScheduled)
	assert.Contains(t, types, model.EventAppointmentConfirmed)
}
