package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/medledger/registry-api/internal/model"
)

// ReadTx exposes consistent reads over every stored mapping.
type ReadTx interface {
	// RoleOf returns the role of an identity, RoleUnassigned for unknown ones.
	RoleOf(ctx context.Context, id model.Identity) (model.Role, error)

	Profile(ctx context.Context, id model.Identity) (*model.PatientProfile, bool, error)
	Appointment(ctx context.Context, id uint64) (*model.Appointment, bool, error)
	MedicalRecord(ctx context.Context, id uint64) (*model.MedicalRecord, bool, error)

	// Index lookups. The returned slices are in creation order.
	PatientAppointments(ctx context.Context, id model.Identity) ([]uint64, error)
	PatientRecords(ctx context.Context, id model.Identity) ([]uint64, error)
	DoctorRecords(ctx context.Context, id model.Identity) ([]uint64, error)
}

// Tx is the write view of a ledger transaction. Every mutating operation of
// the registry runs inside exactly one Tx: guard checks, ID allocation,
// writes, index appends and the audit event all commit together or not at
// all. ID allocation is therefore never speculative; a failed operation
// never consumes an ID.
type Tx interface {
	ReadTx

	SetRole(ctx context.Context, id model.Identity, role model.Role) error
	PutProfile(ctx context.Context, profile *model.PatientProfile) error

	// NextAppointmentID and NextRecordID return a fresh identifier and
	// advance the corresponding counter by one. Counters start at 0 and
	// identifiers are never reused.
	NextAppointmentID(ctx context.Context) (uint64, error)
	NextRecordID(ctx context.Context) (uint64, error)

	PutAppointment(ctx context.Context, apt *model.Appointment) error
	AppendPatientAppointment(ctx context.Context, patient model.Identity, appointmentID uint64) error

	PutMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error
	AppendPatientRecord(ctx context.Context, patient model.Identity, recordID uint64) error
	AppendDoctorRecord(ctx context.Context, doctor model.Identity, recordID uint64) error

	AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
}

// LedgerStore is the registry's single source of state: five key-value
// tables, three identity-keyed index tables, two scalar counters and the
// audit outbox. Implementations must serialize Update calls so that no
// caller ever observes a half-applied operation.
type LedgerStore interface {
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(ReadTx) error) error

	// Update runs fn in a transaction. If fn returns an error the
	// transaction is rolled back and no state changes.
	Update(ctx context.Context, fn func(Tx) error) error
}

// OutboxRepository is the worker-side view of staged audit events.
type OutboxRepository interface {
	PendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
