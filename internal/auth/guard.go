package auth

import (
	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
)

// The guards are pure functions of their inputs: the same user and owner id
// always produce the same decision.

// RouteGuard allows any resolved user. A nil user is Unauthenticated.
func RouteGuard(user *model.User) error {
	if user == nil || user.ID == "" {
		return apperror.Unauthenticated()
	}
	return nil
}

// OwnershipGuard allows the user only if they own the resource. Callers fetch
// the resource first so a missing resource is reported as NotFound, never
// Forbidden, and run this before any mutation.
func OwnershipGuard(user *model.User, ownerID string) error {
	if err := RouteGuard(user); err != nil {
		return err
	}
	if ownerID == "" || user.ID != ownerID {
		return apperror.Forbidden("you can only change your own photos")
	}
	return nil
}
