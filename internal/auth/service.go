package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Service wraps identity rules and serves as the workflow's user directory.
type Service struct {
	repo      Repository
	validator *validator.Validate
	cost      int
	now       func() time.Time
}

var _ requisition.Directory = (*Service)(nil)

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validator.New(), cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// NewUserInput describes an account to create.
type NewUserInput struct {
	ID       string           `validate:"required,max=64"`
	Email    string           `validate:"required,email"`
	Name     string           `validate:"required,max=120"`
	Role     requisition.Role `validate:"required"`
	Password string           `validate:"required,min=8"`
}

// Register creates an active account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in NewUserInput) (User, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Role = requisition.Role(strings.ToUpper(strings.TrimSpace(string(in.Role))))
	if err := s.validator.Struct(in); err != nil {
		return User{}, fmt.Errorf("auth: invalid user: %w", err)
	}
	if !in.Role.Valid() {
		return User{}, fmt.Errorf("auth: unknown role %q", in.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	now := s.now().UTC()
	user := User{
		ID:           in.ID,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Resolve returns the active account with id.
func (s *Service) Resolve(ctx context.Context, id string) (requisition.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return requisition.User{}, err
	}
	if !user.IsActive {
		return requisition.User{}, ErrInvalidCredentials
	}
	return user.Identity(), nil
}

// Reverify checks password for userID before a signature stamp is minted.
func (s *Service) Reverify(ctx context.Context, userID, password string) (requisition.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return requisition.User{}, requisition.ErrNotFound
	}
	if err != nil {
		return requisition.User{}, err
	}
	if !user.IsActive {
		return requisition.User{}, requisition.ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return requisition.User{}, requisition.ErrForbidden
	}
	return user.Identity(), nil
}

// UsersByRole lists active users holding role.
func (s *Service) UsersByRole(ctx context.Context, role requisition.Role) ([]requisition.User, error) {
	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]requisition.User, 0, len(users))
	for _, u := range users {
		if u.IsActive {
			out = append(out, u.Identity())
		}
	}
	return out, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}
