package auth

import (
	"errors"
	"time"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

var (
	// ErrInvalidCredentials indicates an unknown user, an inactive account or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("auth: user not found")
	// ErrDuplicate indicates the id or email is taken.
	ErrDuplicate = errors.New("auth: user already exists")
)

// User represents a staff account.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         requisition.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the view of u the workflow engine works with.
func (u User) Identity() requisition.User {
	return requisition.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
