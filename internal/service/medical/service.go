// Package medical implements the medical record ledger. Records are created
// by doctors for registered patients; only the lab results reference is
// mutable after creation, and only by a lab actor.
package medical

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
	now    func() time.Time
}

func NewService(store repository.LedgerStore, logger *logger.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// AddRecord creates a medical record authored by the calling doctor for a
// registered patient, indexes it under both identities, and returns the
// allocated record ID.
func (s *Service) AddRecord(ctx context.Context, caller model.Identity, req *model.AddMedicalRecordRequest) (uint64, error) {
	patient := model.Identity(req.PatientAddress)

	var recordID uint64
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := access.RequireRole(ctx, tx, caller, model.RoleDoctor); err != nil {
			return err
		}

		_, registered, err := tx.Profile(ctx, patient)
		if err != nil {
			return err
		}
		if !registered {
			return apperrors.PatientNotRegistered(patient.String())
		}

		recordID, err = tx.NextRecordID(ctx)
		if err != nil {
			return err
		}

		rec := &model.MedicalRecord{
			ID:            recordID,
			Patient:       patient,
			Doctor:        caller,
			Diagnosis:     req.Diagnosis,
			Prescription:  req.Prescription,
			LabResultsRef: req.LabResultsRef,
			CreatedAt:     s.now().UTC(),
		}
		if err := tx.PutMedicalRecord(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendPatientRecord(ctx, patient, recordID); err != nil {
			return err
		}
		if err := tx.AppendDoctorRecord(ctx, caller, recordID); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(model.EventMedicalRecordAdded, map[string]interface{}{
			"record_id": recordID,
			"patient":   patient,
			"doctor":    caller,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("medical record added", "record_id", recordID, "patient", patient.String())
	return recordID, nil
}

// UpdateLabResults overwrites a record's lab results reference. Any
// registered lab may attach results to any existing record ID it is given;
// the binding to a requesting doctor or appointment is deliberately not
// enforced.
func (s *Service) UpdateLabResults(ctx context.Context, caller model.Identity, recordID uint64, labResultsRef string) error {
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if err := access.RequireRole(ctx, tx, caller, model.RoleLab); err != nil {
			return err
		}

		rec, ok, err := tx.MedicalRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if !ok || rec.Patient.IsZero() {
			return apperrors.RecordNotFound(recordID)
		}

		rec.LabResultsRef = labResultsRef
		return tx.PutMedicalRecord(ctx, rec)
	})
	if err != nil {
		return err
	}

	s.logger.Info("lab results updated", "record_id", recordID, "lab", caller.String())
	return nil
}

// Record returns a medical record by ID. Readable by any doctor or by the
// patient the record belongs to.
func (s *Service) Record(ctx context.Context, caller model.Identity, recordID uint64) (*model.MedicalRecord, error) {
	var rec *model.MedicalRecord
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		r, ok, viewErr := tx.MedicalRecord(ctx, recordID)
		if viewErr != nil {
			return viewErr
		}
		if !ok {
			return apperrors.RecordNotFound(recordID)
		}
		if err := access.RequireDoctorOrSelfPatient(ctx, tx, caller, r.Patient); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListForPatient returns the patient's record IDs in creation order.
// Readable by any doctor or by the patient themself.
func (s *Service) ListForPatient(ctx context.Context, caller, patient model.Identity) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		if err := access.RequireDoctorOrSelfPatient(ctx, tx, caller, patient); err != nil {
			return err
		}
		var viewErr error
		ids, viewErr = tx.PatientRecords(ctx, patient)
		return viewErr
	})
	return ids, err
}

// ListForDoctor returns the doctor's record IDs in creation order. Only the
// doctor themself may list their authored records.
func (s *Service) ListForDoctor(ctx context.Context, caller, doctor model.Identity) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		if err := access.RequireSelfAndRole(ctx, tx, caller, doctor, model.RoleDoctor); err != nil {
			return err
		}
		var viewErr error
		ids, viewErr = tx.DoctorRecords(ctx, doctor)
		return viewErr
	})
	return ids, err
}
