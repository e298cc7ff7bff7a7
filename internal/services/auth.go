package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/utils"
)

var ErrInvalidRole = errors.New("role must be student or faculty")

type AuthService struct {
	store     *StateStore
	jwtConfig *config.JWTConfig
}

func NewAuthService(store *StateStore, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{store: store, jwtConfig: jwtCfg}
}

// LoginRequest carries the login form. Password is accepted but not checked;
// credential rules live in front of this service.
type LoginRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
	Role     string `json:"role" binding:"required"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpireAt  time.Time   `json:"expire_at"`
	User      models.User `json:"user"`
	IsNew     bool        `json:"isNew"`
	NeedsTeam bool        `json:"needsTeam"`
}

// Login resolves the email to a recorded user or drafts a new one. A drafted
// user becomes durable once the client joins with it.
func (s *AuthService) Login(req *LoginRequest) (*LoginResponse, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != models.RoleStudent && role != models.RoleFaculty {
		return nil, ErrInvalidRole
	}

	email := strings.TrimSpace(req.Email)
	user, found := s.store.FindUserByEmail(email)
	if !found {
		user = models.User{
			ID:    "user_" + uuid.NewString(),
			Email: email,
			Name:  strings.TrimSpace(req.Name),
			Role:  role,
		}
		if user.Name == "" {
			user.Name = email
		}
	}

	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Name, user.Role, hours)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Token:     token,
		ExpireAt:  time.Now().Add(time.Duration(hours) * time.Hour),
		User:      user,
		IsNew:     !found,
		NeedsTeam: user.NeedsTeam(),
	}, nil
}
