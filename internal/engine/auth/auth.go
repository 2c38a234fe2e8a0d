package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sdlcboard/internal/domain"
)

// Decision is the outcome of the dashboard access gate.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
)

// Check decides whether a role may view dashboard data. Only project managers
// and admins are allowed; an absent or unknown role is denied. Call it again
// on every role change, the result must not be cached across roles.
func Check(role domain.Role) Decision {
	switch role {
	case domain.RoleProjectManager, domain.RoleAdmin:
		return Allowed
	default:
		return Denied
	}
}

// ForbiddenError indicates the caller's role is not sufficient.
type ForbiddenError struct {
	Required domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Required == "" {
		return "access denied"
	}
	return fmt.Sprintf("role %s required", e.Required)
}

// RequireAdmin returns a ForbiddenError unless role is ADMIN.
func RequireAdmin(role domain.Role) error {
	if role != domain.RoleAdmin {
		return ForbiddenError{Required: domain.RoleAdmin}
	}
	return nil
}

// Service resolves actor roles from SQL.
type Service struct {
	DB *sql.DB
}

// ActorRole returns the role assigned to an actor, or the empty role when none is assigned.
func (s Service) ActorRole(ctx context.Context, actorID string) (domain.Role, error) {
	if actorID == "" {
		return "", errors.New("actor_id required")
	}
	var role string
	err := s.DB.QueryRowContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=?`, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.Role(role), nil
}

// Provider adapts an actor lookup into a role provider for a single actor.
type Provider struct {
	Service Service
	ActorID string
}

func (p Provider) CurrentRole(ctx context.Context) (domain.Role, error) {
	return p.Service.ActorRole(ctx, p.ActorID)
}

// StaticRole is a role provider that always reports the same role.
type StaticRole domain.Role

func (r StaticRole) CurrentRole(context.Context) (domain.Role, error) {
	return domain.Role(r), nil
}
