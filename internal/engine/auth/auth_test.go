package auth

import (
	"context"
	"errors"
	"testing"

	"sdlcboard/internal/domain"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		role domain.Role
		want Decision
	}{
		{domain.RoleProjectManager, Allowed},
		{domain.RoleAdmin, Allowed},
		{domain.RoleViewer, Denied},
		{"", Denied},
		{"admin", Denied},
		{"OWNER", Denied},
	}
	for _, tc := range cases {
		if got := Check(tc.role); got != tc.want {
			t.Errorf("Check(%q) = %s, want %s", tc.role, got, tc.want)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(domain.RoleAdmin); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	err := RequireAdmin(domain.RoleProjectManager)
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Required != domain.RoleAdmin {
		t.Fatalf("expected ForbiddenError for ADMIN, got %v", err)
	}
}

func TestStaticRole(t *testing.T) {
	role, err := StaticRole(domain.RoleViewer).CurrentRole(context.Background())
	if err != nil || role != domain.RoleViewer {
		t.Fatalf("unexpected role %q err %v", role, err)
	}
}
