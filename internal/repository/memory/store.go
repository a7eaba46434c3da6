package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository"
)

// Store is an in-memory LedgerStore. A single mutex serializes every
// transaction, and writes are staged until the closure returns nil, so a
// failed operation leaves the state byte-identical to before the call.
type Store struct {
	mu sync.Mutex

	roles        map[model.Identity]model.Role
	profiles     map[model.Identity]model.PatientProfile
	appointments map[uint64]model.Appointment
	records      map[uint64]model.MedicalRecord

	patientAppointments map[model.Identity][]uint64
	patientRecords      map[model.Identity][]uint64
	doctorRecords       map[model.Identity][]uint64

	nextAppointmentID uint64
	nextRecordID      uint64

	outbox []*model.OutboxEvent
}

// NewStore returns a fresh store with exactly one administrator identity.
func NewStore(admin model.Identity) *Store {
	s := &Store{
		roles:               make(map[model.Identity]model.Role),
		profiles:            make(map[model.Identity]model.PatientProfile),
		appointments:        make(map[uint64]model.Appointment),
		records:             make(map[uint64]model.MedicalRecord),
		patientAppointments: make(map[model.Identity][]uint64),
		patientRecords:      make(map[model.Identity][]uint64),
		doctorRecords:       make(map[model.Identity][]uint64),
	}
	if !admin.IsZero() {
		s.roles[admin] = model.RoleAdmin
	}
	return s
}

func (s *Store) View(ctx context.Context, fn func(repository.ReadTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{store: s})
}

func (s *Store) Update(ctx context.Context, fn func(repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s, staged: newStaged(s)}
	if err := fn(t); err != nil {
		return err
	}
	t.staged.commit(s)
	return nil
}

// staged accumulates uncommitted writes. Reads inside the transaction see
// staged values first, then the underlying tables.
type staged struct {
	roles        map[model.Identity]model.Role
	profiles     map[model.Identity]model.PatientProfile
	appointments map[uint64]model.Appointment
	records      map[uint64]model.MedicalRecord

	patientAppointments map[model.Identity][]uint64
	patientRecords      map[model.Identity][]uint64
	doctorRecords       map[model.Identity][]uint64

	nextAppointmentID uint64
	nextRecordID      uint64

	outbox []*model.OutboxEvent
}

func newStaged(s *Store) *staged {
	return &staged{
		roles:               make(map[model.Identity]model.Role),
		profiles:            make(map[model.Identity]model.PatientProfile),
		appointments:        make(map[uint64]model.Appointment),
		records:             make(map[uint64]model.MedicalRecord),
		patientAppointments: make(map[model.Identity][]uint64),
		patientRecords:      make(map[model.Identity][]uint64),
		doctorRecords:       make(map[model.Identity][]uint64),
		nextAppointmentID:   s.nextAppointmentID,
		nextRecordID:        s.nextRecordID,
	}
}

func (st *staged) commit(s *Store) {
	for id, role := range st.roles {
		s.roles[id] = role
	}
	for id, p := range st.profiles {
		s.profiles[id] = p
	}
	for id, a := range st.appointments {
		s.appointments[id] = a
	}
	for id, r := range st.records {
		s.records[id] = r
	}
	for id, ids := range st.patientAppointments {
		s.patientAppointments[id] = append(s.patientAppointments[id], ids...)
	}
	for id, ids := range st.patientRecords {
		s.patientRecords[id] = append(s.patientRecords[id], ids...)
	}
	for id, ids := range st.doctorRecords {
		s.doctorRecords[id] = append(s.doctorRecords[id], ids...)
	}
	s.nextAppointmentID = st.nextAppointmentID
	s.nextRecordID = st.nextRecordID
	s.outbox = append(s.outbox, st.outbox...)
}

type tx struct {
	store *Store
	// staged is nil for read-only transactions.
	staged *staged
}

func (t *tx) RoleOf(ctx context.Context, id model.Identity) (model.Role, error) {
	if t.staged != nil {
		if role, ok := t.staged.roles[id]; ok {
			return role, nil
		}
	}
	if role, ok := t.store.roles[id]; ok {
		return role, nil
	}
	return model.RoleUnassigned, nil
}

func (t *tx) Profile(ctx context.Context, id model.Identity) (*model.PatientProfile, bool, error) {
	if t.staged != nil {
		if p, ok := t.staged.profiles[id]; ok {
			return &p, true, nil
		}
	}
	if p, ok := t.store.profiles[id]; ok {
		return &p, true, nil
	}
	return nil, false, nil
}

func (t *tx) Appointment(ctx context.Context, id uint64) (*model.Appointment, bool, error) {
	if t.staged != nil {
		if a, ok := t.staged.appointments[id]; ok {
			return &a, true, nil
		}
	}
	if a, ok := t.store.appointments[id]; ok {
		return &a, true, nil
	}
	return nil, false, nil
}

func (t *tx) MedicalRecord(ctx context.Context, id uint64) (*model.MedicalRecord, bool, error) {
	if t.staged != nil {
		if r, ok := t.staged.records[id]; ok {
			return &r, true, nil
		}
	}
	if r, ok := t.store.records[id]; ok {
		return &r, true, nil
	}
	return nil, false, nil
}

func (t *tx) PatientAppointments(ctx context.Context, id model.Identity) ([]uint64, error) {
	ids := append([]uint64(nil), t.store.patientAppointments[id]...)
	if t.staged != nil {
		ids = append(ids, t.staged.patientAppointments[id]...)
	}
	return ids, nil
}

func (t *tx) PatientRecords(ctx context.Context, id model.Identity) ([]uint64, error) {
	ids := append([]uint64(nil), t.store.patientRecords[id]...)
	if t.staged != nil {
		ids = append(ids, t.staged.patientRecords[id]...)
	}
	return ids, nil
}

func (t *tx) DoctorRecords(ctx context.Context, id model.Identity) ([]uint64, error) {
	ids := append([]uint64(nil), t.store.doctorRecords[id]...)
	if t.staged != nil {
		ids = append(ids, t.staged.doctorRecords[id]...)
	}
	return ids, nil
}

func (t *tx) SetRole(ctx context.Context, id model.Identity, role model.Role) error {
	t.staged.roles[id] = role
	return nil
}

func (t *tx) PutProfile(ctx context.Context, profile *model.PatientProfile) error {
	t.staged.profiles[profile.Address] = *profile
	return nil
}

func (t *tx) NextAppointmentID(ctx context.Context) (uint64, error) {
	id := t.staged.nextAppointmentID
	t.staged.nextAppointmentID++
	return id, nil
}

func (t *tx) NextRecordID(ctx context.Context) (uint64, error) {
	id := t.staged.nextRecordID
	t.staged.nextRecordID++
	return id, nil
}

func (t *tx) PutAppointment(ctx context.Context, apt *model.Appointment) error {
	t.staged.appointments[apt.ID] = *apt
	return nil
}

func (t *tx) AppendPatientAppointment(ctx context.Context, patient model.Identity, appointmentID uint64) error {
	t.staged.patientAppointments[patient] = append(t.staged.patientAppointments[patient], appointmentID)
	return nil
}

func (t *tx) PutMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error {
	t.staged.records[rec.ID] = *rec
	return nil
}

func (t *tx) AppendPatientRecord(ctx context.Context, patient model.Identity, recordID uint64) error {
	t.staged.patientRecords[patient] = append(t.staged.patientRecords[patient], recordID)
	return nil
}

func (t *tx) AppendDoctorRecord(ctx context.Context, doctor model.Identity, recordID uint64) error {
	t.staged.doctorRecords[doctor] = append(t.staged.doctorRecords[doctor], recordID)
	return nil
}

func (t *tx) AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	copied := *event
	t.staged.outbox = append(t.staged.outbox, &copied)
	return nil
}

// PendingEvents implements repository.OutboxRepository for the worker.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*model.OutboxEvent, 0, limit)
	for _, ev := range s.outbox {
		if ev.Status != model.OutboxStatusPending {
			continue
		}
		copied := *ev
		events = append(events, &copied)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return s.setOutboxStatus(id, model.OutboxStatusProcessed, nil)
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setOutboxStatus(id, model.OutboxStatusFailed, &reason)
}

func (s *Store) setOutboxStatus(id uuid.UUID, status model.OutboxStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.outbox {
		if ev.ID == id {
			now := time.Now().UTC()
			ev.Status = status
			ev.ErrorMessage = reason
			ev.ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}
