package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/utils"
)

func newAuthFixture() *AuthService {
	utils.SetJWTSecret("test-secret")
	snap := models.NewSnapshot()
	snap.Users = []models.User{
		{ID: "u1", Email: "ada@uni.edu", Name: "Ada", Role: models.RoleStudent, TeamID: "Alpha"},
		{ID: "u2", Email: "prof@uni.edu", Name: "Prof", Role: models.RoleFaculty},
	}
	store := NewStateStore(snap, NewInlineSnapshotWriter(&memPersister{}))
	return NewAuthService(store, &config.JWTConfig{ExpireHour: 2})
}

func TestAuthService_LoginReturningUser(t *testing.T) {
	svc := newAuthFixture()

	resp, err := svc.Login(&LoginRequest{Email: "  ADA@uni.edu ", Role: "student"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.IsNew {
		t.Error("existing email should not be new")
	}
	if resp.User.ID != "u1" || resp.User.TeamID != "Alpha" {
		t.Errorf("User = %+v", resp.User)
	}
	if resp.NeedsTeam {
		t.Error("student with a team should not need one")
	}

	claims, err := utils.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != "u1" || claims.Role != models.RoleStudent {
		t.Errorf("claims = %+v", claims)
	}
}

func TestAuthService_LoginNewUser(t *testing.T) {
	svc := newAuthFixture()

	resp, err := svc.Login(&LoginRequest{Name: "Ben", Email: "ben@uni.edu", Role: "Student"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !resp.IsNew || !resp.NeedsTeam {
		t.Errorf("IsNew = %v, NeedsTeam = %v", resp.IsNew, resp.NeedsTeam)
	}
	if !strings.HasPrefix(resp.User.ID, "user_") {
		t.Errorf("ID = %q", resp.User.ID)
	}
	if resp.User.Role != models.RoleStudent {
		t.Errorf("Role = %q", resp.User.Role)
	}

	// Drafted users are not recorded until they join.
	if _, found := svc.store.FindUserByEmail("ben@uni.edu"); found {
		t.Error("login should not record the user")
	}
}

func TestAuthService_LoginDefaults(t *testing.T) {
	svc := newAuthFixture()

	resp, err := svc.Login(&LoginRequest{Email: "new@uni.edu", Role: "faculty"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.Name != "new@uni.edu" {
		t.Errorf("Name = %q, expected email fallback", resp.User.Name)
	}
	if resp.NeedsTeam {
		t.Error("faculty never needs a team")
	}
}

func TestAuthService_LoginInvalidRole(t *testing.T) {
	svc := newAuthFixture()

	for _, role := range []string{"", "admin", "instructor"} {
		if _, err := svc.Login(&LoginRequest{Email: "x@uni.edu", Role: role}); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("role %q: error = %v", role, err)
		}
	}
}
