// Package patient implements the patient directory. Profiles are created
// exactly once, by the patient's own self-registration call, and never
// deleted or transferred.
package patient

import (
	"context"

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

// Register creates the caller's patient profile and assigns the patient role.
// Repeat calls are rejected, not merged.
func (s *Service) Register(ctx context.Context, caller model.Identity, req *model.RegisterPatientRequest) (*model.PatientProfile, error) {
	profile := &model.PatientProfile{
		Address:     caller,
		Name:        req.Name,
		Age:         req.Age,
		ContactInfo: req.ContactInfo,
		Registered:  true,
	}

	err := s.store.Update(ctx, func(tx repository.Tx) error {
		role, err := tx.RoleOf(ctx, caller)
		if err != nil {
			return err
		}
		if role != model.RoleUnassigned {
			return apperrors.RoleAlreadyAssigned(caller.String())
		}

		// The role row must exist before the profile row: patient_profiles
		// carries a foreign key on roles(address).
		if err := tx.SetRole(ctx, caller, model.RolePatient); err != nil {
			return err
		}
		if err := tx.PutProfile(ctx, profile); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(model.EventPatientRegistered, map[string]interface{}{
			"address": caller,
			"name":    req.Name,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patient registered", "address", caller.String())
	return profile, nil
}

// Profile returns the stored profile for an identity. Readable by any doctor
// or by the patient themself.
func (s *Service) Profile(ctx context.Context, caller, id model.Identity) (*model.PatientProfile, error) {
	var profile *model.PatientProfile
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		if err := access.RequireDoctorOrSelfPatient(ctx, tx, caller, id); err != nil {
			return err
		}
		p, ok, viewErr := tx.Profile(ctx, id)
		if viewErr != nil {
			return viewErr
		}
		if !ok {
			return apperrors.NotFound("patient profile")
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
