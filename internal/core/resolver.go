package core

import (
	"context"
	"fmt"

	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// ResolveRecipients expands an alert's target specification into a concrete,
// deduplicated set of recipients. It is a pure read: no rows are written.
//
// Rules:
//   - ids absent from the directory are silently dropped
//   - non-admin actors only resolve recipients within their own department
//   - the actor is always excluded from the result
//   - an empty result is a normal outcome, not an error; the caller treats
//     it as a terminal no-op
func ResolveRecipients(ctx context.Context, db *sqlite.DB, actor *models.User, spec models.TargetSpec) ([]*models.User, error) {
	if actor == nil {
		return nil, fmt.Errorf("actor is required")
	}

	var (
		candidates []*models.User
		err        error
	)
	switch {
	case len(spec.UserIDs) > 0:
		candidates, err = db.ListActiveUsersByIDs(ctx, spec.UserIDs)
	case spec.DepartmentID != nil:
		if !actorMaySeeDepartment(actor, *spec.DepartmentID) {
			return nil, nil
		}
		candidates, err = db.ListActiveUsersByDepartment(ctx, *spec.DepartmentID)
	case spec.Broadcast:
		if actor.Role == models.UserRoleAdmin {
			candidates, err = db.ListActiveUsers(ctx)
		} else if actor.DepartmentID != nil {
			candidates, err = db.ListActiveUsersByDepartment(ctx, *actor.DepartmentID)
		}
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	seen := make(map[models.UserID]struct{}, len(candidates))
	out := make([]*models.User, 0, len(candidates))
	for _, u := range candidates {
		if u.ID == actor.ID {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		if actor.Role != models.UserRoleAdmin && !sameDepartment(actor, u) {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

func actorMaySeeDepartment(actor *models.User, dept models.DepartmentID) bool {
	if actor.Role == models.UserRoleAdmin {
		return true
	}
	return actor.DepartmentID != nil && *actor.DepartmentID == dept
}

func sameDepartment(a, b *models.User) bool {
	return a.DepartmentID != nil && b.DepartmentID != nil && *a.DepartmentID == *b.DepartmentID
}
