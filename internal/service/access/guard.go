// Package access holds the guard predicates consulted before every state
// mutation. Guards are stateless; each failure returns a typed error instead
// of silently no-op-ing, so the precondition is independently testable.
package access

import (
	"context"
	"fmt"

	"github.com/medledger/registry-api/internal/model"
	apperrors "github.com/medledger/registry-api/pkg/errors"
)

// RoleReader is the slice of the ledger transaction the guards need.
type RoleReader interface {
	RoleOf(ctx context.Context, id model.Identity) (model.Role, error)
}

// RequireRole passes iff the caller holds exactly the given role.
func RequireRole(ctx context.Context, r RoleReader, caller model.Identity, role model.Role) error {
	got, err := r.RoleOf(ctx, caller)
	if err != nil {
		return err
	}
	if got != role {
		return apperrors.AccessDenied(fmt.Sprintf("operation requires role %s", role))
	}
	return nil
}

// RequireSelfAndRole passes iff the caller is the claimed identity and holds
// the given role. Used for "only the named patient/doctor may act on their
// own behalf".
func RequireSelfAndRole(ctx context.Context, r RoleReader, caller, claimed model.Identity, role model.Role) error {
	if caller != claimed {
		return apperrors.AccessDenied("caller may only act on their own behalf")
	}
	return RequireRole(ctx, r, caller, role)
}

// RequireDoctorOrSelfPatient passes iff the caller is any doctor, or the
// caller is the patient who owns the record.
func RequireDoctorOrSelfPatient(ctx context.Context, r RoleReader, caller, owner model.Identity) error {
	role, err := r.RoleOf(ctx, caller)
	if err != nil {
		return err
	}
	if role == model.RoleDoctor {
		return nil
	}
	if role == model.RolePatient && caller == owner {
		return nil
	}
	return apperrors.AccessDenied("operation requires a doctor or the owning patient")
}
