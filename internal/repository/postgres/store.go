package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository"
)

// Store is the Postgres-backed LedgerStore. Transactions run at serializable
// isolation so concurrent operations resolve to a total order, matching the
// single-operation-at-a-time execution model of the in-memory store.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Bootstrap designates the administrator identity on first start. A no-op if
// an admin already exists; the admin role is never granted again afterwards.
func (s *Store) Bootstrap(ctx context.Context, admin model.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (address, role)
		SELECT $1, $2
		WHERE NOT EXISTS (SELECT 1 FROM roles WHERE role = $2)
	`, admin, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(repository.ReadTx) error) error {
	return s.withTx(ctx, func(tx *ledgerTx) error { return fn(tx) })
}

func (s *Store) Update(ctx context.Context, fn func(repository.Tx) error) error {
	return s.withTx(ctx, func(tx *ledgerTx) error { return fn(tx) })
}

func (s *Store) withTx(ctx context.Context, fn func(*ledgerTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

type ledgerTx struct {
	tx *sqlx.Tx
}

func (t *ledgerTx) RoleOf(ctx context.Context, id model.Identity) (model.Role, error) {
	var role model.Role
	err := t.tx.GetContext(ctx, &role, `SELECT role FROM roles WHERE address = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RoleUnassigned, nil
	}
	if err != nil {
		return model.RoleUnassigned, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (t *ledgerTx) Profile(ctx context.Context, id model.Identity) (*model.PatientProfile, bool, error) {
	var profile model.PatientProfile
	err := t.tx.GetContext(ctx, &profile, `
		SELECT address, name, age, contact_info, registered
		FROM patient_profiles WHERE address = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get patient profile: %w", err)
	}
	return &profile, true, nil
}

func (t *ledgerTx) Appointment(ctx context.Context, id uint64) (*model.Appointment, bool, error) {
	var apt model.Appointment
	err := t.tx.GetContext(ctx, &apt, `
		SELECT id, patient_address, doctor_address, scheduled_time, confirmed
		FROM appointments WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, true, nil
}

func (t *ledgerTx) MedicalRecord(ctx context.Context, id uint64) (*model.MedicalRecord, bool, error) {
	var rec model.MedicalRecord
	err := t.tx.GetContext(ctx, &rec, `
		SELECT id, patient_address, doctor_address, diagnosis, prescription, lab_results_ref, created_at
		FROM medical_records WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get medical record: %w", err)
	}
	return &rec, true, nil
}

func (t *ledgerTx) PatientAppointments(ctx context.Context, id model.Identity) ([]uint64, error) {
	return t.indexIDs(ctx, `
		SELECT appointment_id FROM patient_appointments
		WHERE patient_address = $1 ORDER BY position
	`, id)
}

func (t *ledgerTx) PatientRecords(ctx context.Context, id model.Identity) ([]uint64, error) {
	return t.indexIDs(ctx, `
		SELECT record_id FROM patient_records
		WHERE patient_address = $1 ORDER BY position
	`, id)
}

func (t *ledgerTx) DoctorRecords(ctx context.Context, id model.Identity) ([]uint64, error) {
	return t.indexIDs(ctx, `
		SELECT record_id FROM doctor_records
		WHERE doctor_address = $1 ORDER BY position
	`, id)
}

func (t *ledgerTx) indexIDs(ctx context.Context, query string, id model.Identity) ([]uint64, error) {
	ids := []uint64{}
	if err := t.tx.SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return ids, nil
}

func (t *ledgerTx) SetRole(ctx context.Context, id model.Identity, role model.Role) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO roles (address, role) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET role = EXCLUDED.role
	`, id, role)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return nil
}

func (t *ledgerTx) PutProfile(ctx context.Context, profile *model.PatientProfile) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO patient_profiles (address, name, age, contact_info, registered)
		VALUES ($1, $2, $3, $4, $5)
	`, profile.Address, profile.Name, profile.Age, profile.ContactInfo, profile.Registered)
	if err != nil {
		return fmt.Errorf("failed to store patient profile: %w", err)
	}
	return nil
}

func (t *ledgerTx) NextAppointmentID(ctx context.Context) (uint64, error) {
	return t.nextID(ctx, "next_appointment_id")
}

func (t *ledgerTx) NextRecordID(ctx context.Context) (uint64, error) {
	return t.nextID(ctx, "next_record_id")
}

func (t *ledgerTx) nextID(ctx context.Context, counter string) (uint64, error) {
	var id uint64
	err := t.tx.GetContext(ctx, &id, `
		UPDATE counters SET value = value + 1 WHERE name = $1
		RETURNING value - 1
	`, counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s: %w", counter, err)
	}
	return id, nil
}

func (t *ledgerTx) PutAppointment(ctx context.Context, apt *model.Appointment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments (id, patient_address, doctor_address, scheduled_time, confirmed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET confirmed = EXCLUDED.confirmed
	`, apt.ID, apt.Patient, apt.Doctor, apt.ScheduledTime, apt.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to store appointment: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendPatientAppointment(ctx context.Context, patient model.Identity, appointmentID uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO patient_appointments (patient_address, position, appointment_id)
		VALUES ($1, (SELECT COALESCE(MAX(position) + 1, 0) FROM patient_appointments WHERE patient_address = $1), $2)
	`, patient, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to append patient appointment index: %w", err)
	}
	return nil
}

func (t *ledgerTx) PutMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO medical_records (id, patient_address, doctor_address, diagnosis, prescription, lab_results_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET lab_results_ref = EXCLUDED.lab_results_ref
	`, rec.ID, rec.Patient, rec.Doctor, rec.Diagnosis, rec.Prescription, rec.LabResultsRef, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store medical record: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendPatientRecord(ctx context.Context, patient model.Identity, recordID uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO patient_records (patient_address, position, record_id)
		VALUES ($1, (SELECT COALESCE(MAX(position) + 1, 0) FROM patient_records WHERE patient_address = $1), $2)
	`, patient, recordID)
	if err != nil {
		return fmt.Errorf("failed to append patient record index: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendDoctorRecord(ctx context.Context, doctor model.Identity, recordID uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO doctor_records (doctor_address, position, record_id)
		VALUES ($1, (SELECT COALESCE(MAX(position) + 1, 0) FROM doctor_records WHERE doctor_address = $1), $2)
	`, doctor, recordID)
	if err != nil {
		return fmt.Errorf("failed to append doctor record index: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.EventType, event.Payload, event.Status, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}

// PendingEvents implements repository.OutboxRepository.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	events := []*model.OutboxEvent{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, event_type, payload, status, error_message, created_at, processed_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, model.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $1, processed_at = NOW() WHERE id = $2
	`, model.OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox event %s not found", id)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $1, error_message = $2, processed_at = NOW() WHERE id = $3
	`, model.OutboxStatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox event %s not found", id)
	}
	return nil
}
