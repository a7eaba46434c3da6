// Package appointment implements the appointment ledger. Appointments are
// immutable once created except for the confirmed flag, which the assigned
// doctor flips exactly once.
package appointment

import (
	"context"
	"time"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository"
	"github.com/medledger/registry-api/internal/service/access"
	apperrors "github.com/medledger/registry-api/pkg/errors"
	"github.com/medledger/registry-api/pkg/logger"
)

type Service struct {
	store  repository.LedgerStore
	logger *logger.Logger
}

func NewService(store repository.LedgerStore, logger *logger.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Schedule creates an appointment between the calling patient and a
// registered doctor, and returns the allocated appointment ID. The ID is
// allocated in the same transaction as the write, so failed attempts never
// consume one.
func (s *Service) Schedule(ctx context.Context, caller, doctor model.Identity, at time.Time) (uint64, error) {
	var appointmentID uint64
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := access.RequireRole(ctx, tx, caller, model.RolePatient); err != nil {
			return err
		}

		doctorRole, err := tx.RoleOf(ctx, doctor)
		if err != nil {
			return err
		}
		if doctorRole != model.RoleDoctor {
			return apperrors.DoctorNotRegistered(doctor.String())
		}

		appointmentID, err = tx.NextAppointmentID(ctx)
		if err != nil {
			return err
		}

		apt := &model.Appointment{
			ID:            appointmentID,
			Patient:       caller,
			Doctor:        doctor,
			ScheduledTime: at,
			Confirmed:     false,
		}
		if err := tx.PutAppointment(ctx, apt); err != nil {
			return err
		}
		if err := tx.AppendPatientAppointment(ctx, caller, appointmentID); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(model.EventAppointmentScheduled, map[string]interface{}{
			"appointment_id": appointmentID,
			"patient":        caller,
			"doctor":         doctor,
			"scheduled_time": at,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("appointment scheduled", "appointment_id", appointmentID, "patient", caller.String())
	return appointmentID, nil
}

// Confirm marks an appointment confirmed. Only the assigned doctor may
// confirm, and only once; the transition is one-way.
func (s *Service) Confirm(ctx context.Context, caller model.Identity, appointmentID uint64) error {
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := access.RequireRole(ctx, tx, caller, model.RoleDoctor); err != nil {
			return err
		}

		apt, ok, err := tx.Appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("appointment")
		}
		if apt.Doctor != caller {
			return apperrors.NotAssignedDoctor(appointmentID)
		}
		if apt.Confirmed {
			return apperrors.AlreadyConfirmed(appointmentID)
		}

		apt.Confirmed = true
		if err := tx.PutAppointment(ctx, apt); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(model.EventAppointmentConfirmed, map[string]interface{}{
			"appointment_id": appointmentID,
			"doctor":         caller,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		return err
	}

	s.logger.Info("appointment confirmed", "appointment_id", appointmentID, "doctor", caller.String())
	return nil
}

// Get returns an appointment by ID. Readable by any doctor or by the patient
// who scheduled it.
func (s *Service) Get(ctx context.Context, caller model.Identity, appointmentID uint64) (*model.Appointment, error) {
	var apt *model.Appointment
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		a, ok, viewErr := tx.Appointment(ctx, appointmentID)
		if viewErr != nil {
			return viewErr
		}
		if !ok {
			return apperrors.NotFound("appointment")
		}
		if err := access.RequireDoctorOrSelfPatient(ctx, tx, caller, a.Patient); err != nil {
			return err
		}
		apt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return apt, nil
}

// ListForPatient returns the patient's appointment IDs in creation order.
// Readable by any doctor or by the patient themself.
func (s *Service) ListForPatient(ctx context.Context, caller, patient model.Identity) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		if err := access.RequireDoctorOrSelfPatient(ctx, tx, caller, patient); err != nil {
			return err
		}
		var viewErr error
		ids, viewErr = tx.PatientAppointments(ctx, patient)
		return viewErr
	})
	return ids, err
}
