// Package identity implements the identity registry: the identity-to-role
// mapping that every guard consults. Roles are write-once; the single admin
// is designated at store bootstrap and never granted again.
package identity

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

// RoleOf returns the role of an identity, RoleUnassigned for unknown ones.
func (s *Service) RoleOf(ctx context.Context, id model.Identity) (model.Role, error) {
	var role model.Role
	err := s.store.View(ctx, func(tx repository.ReadTx) error {
		var viewErr error
		role, viewErr = tx.RoleOf(ctx, id)
		return viewErr
	})
	return role, err
}

// RegisterDoctor assigns the doctor role to target. Admin only.
func (s *Service) RegisterDoctor(ctx context.Context, caller, target model.Identity) error {
	if err := s.register(ctx, caller, target, model.RoleDoctor, "doctor", model.EventDoctorRegistered); err != nil {
		return err
	}
	s.logger.Info("doctor registered", "address", target.String())
	return nil
}

// RegisterLab assigns the lab role to target. Admin only.
func (s *Service) RegisterLab(ctx context.Context, caller, target model.Identity) error {
	if err := s.register(ctx, caller, target, model.RoleLab, "lab", model.EventLabRegistered); err != nil {
		return err
	}
	s.logger.Info("lab registered", "address", target.String())
	return nil
}

func (s *Service) register(ctx context.Context, caller, target model.Identity, role model.Role, kind, eventType string) error {
	return s.store.Update(ctx, func(tx repository.Tx) error {
		if err := access.RequireRole(ctx, tx, caller, model.RoleAdmin); err != nil {
			return err
		}

		current, err := tx.RoleOf(ctx, target)
		if err != nil {
			return err
		}
		if current == role {
			return apperrors.AlreadyRegistered(kind, target.String())
		}
		if current != model.RoleUnassigned {
			return apperrors.RoleAlreadyAssigned(target.String())
		}

		if err := tx.SetRole(ctx, target, role); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(eventType, map[string]interface{}{
			"address": target,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
}
