package patient_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository"
	"github.com/medledger/registry-api/internal/repository/memory"
	"github.com/medledger/registry-api/internal/service/identity"
	"github.com/medledger/registry-api/internal/service/patient"
	apperrors "github.com/medledger/registry-api/pkg/errors"
	"github.com/medledger/registry-api/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("admin")
	svc := patient.NewService(store, testLogger())

	profile, err := svc.Register(ctx, "alice", &model.RegisterPatientRequest{
		Name:        "Alice",
		Age:         34,
		ContactInfo: "alice@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Identity("alice"), profile.Address)
	assert.True(t, profile.Registered)

	got, err := svc.Profile(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, 34, got.Age)

	ids := identity.NewService(store, testLogger())
	role, err := ids.RoleOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, role)

	events, err := store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPatientRegistered, events[0].EventType)
}

func TestRegisterTwice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("admin")
	svc := patient.NewService(store, testLogger())

	_, err := svc.Register(ctx, "alice", &model.RegisterPatientRequest{Name: "Alice", Age: 34})
	require.NoError(t, err)

	// Repeat registration is rejected and the stored profile is untouched.
	_, err = svc.Register(ctx, "alice", &model.RegisterPatientRequest{Name: "Impostor", Age: 1})
	assert.Equal(t, apperrors.ErrRoleAlreadyAssigned, apperrors.CodeOf(err))

	got, err := svc.Profile(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestRegisterWithExistingRole(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("admin")
	svc := patient.NewService(store, testLogger())
	ids := identity.NewService(store, testLogger())

	require.NoError(t, ids.RegisterDoctor(ctx, "admin", "dr-house"))

	// A doctor cannot also become a patient.
	_, err := svc.Register(ctx, "dr-house", &model.RegisterPatientRequest{Name: "Greg", Age: 50})
	assert.Equal(t, apperrors.ErrRoleAlreadyAssigned, apperrors.CodeOf(err))

	_, err = svc.Profile(ctx, "dr-house", "dr-house")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestProfileNotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("admin")
	svc := patient.NewService(store, testLogger())
	ids := identity.NewService(store, testLogger())

	require.NoError(t, ids.RegisterDoctor(ctx, "admin", "dr-house"))

	_, err := svc.Profile(ctx, "dr-house", "nobody")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

// orderTx records the sequence of role and profile writes while delegating
// to a real transaction.
type orderTx struct {
	repository.Tx
	ops *[]string
}

func (t *orderTx) SetRole(ctx context.Context, id model.Identity, role model.Role) error {
	*t.ops = append(*t.ops, "SetRole")
	return t.Tx.SetRole(ctx, id, role)
}

func (t *orderTx) PutProfile(ctx context.Context, p *model.PatientProfile) error {
	*t.ops = append(*t.ops, "PutProfile")
	return t.Tx.PutProfile(ctx, p)
}

type orderStore struct {
	repository.LedgerStore
	ops []string
}

func (s *orderStore) Update(ctx context.Context, fn func(repository.Tx) error) error {
	return s.LedgerStore.Update(ctx, func(tx repository.Tx) error {
		return fn(&orderTx{Tx: tx, ops: &s.ops})
	})
}

func TestRegisterWritesRoleBeforeProfile(t *testing.T) {
	ctx := context.Background()
	store := &orderStore{LedgerStore: memory.NewStore("admin")}
	svc := patient.NewService(store, testLogger())

	_, err := svc.Register(ctx, "alice", &model.RegisterPatientRequest{Name: "Alice", Age: 34})
	require.NoError(t, err)

	// patient_profiles carries a foreign key on roles, so the role row has
	// to be written before the profile row within the transaction.
	require.Equal(t, []string{"SetRole", "PutProfile"}, store.ops)
}

func TestProfileReadGuard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("admin")
	svc := patient.NewService(store, testLogger())

	_, err := svc.Register(ctx, "alice", &model.RegisterPatientRequest{Name: "Alice", Age: 34})
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", &model.RegisterPatientRequest{Name: "Bob", Age: 40})
	require.NoError(t, err)

	// Another patient cannot read Alice's profile.
	_, err = svc.Profile(ctx, "bob", "alice")
	assert.Equal(t, apperrors.ErrAccessDenied, apperrors.CodeOf(err))

	// Neither can an unassigned identity.
	_, err = svc.Profile(ctx, "stranger", "alice")
	assert.Equal(t, apperrors.ErrAccessDenied, apperrors.CodeOf(err))
}
