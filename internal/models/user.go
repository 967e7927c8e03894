package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/storage"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	adminDefaultName = "Admin User"
)

// User is an account created on first login. ID is the identity provider's
// subject claim.
type User struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Name      *string    `json:"name" db:"name"`
	Role      string     `json:"role" db:"role"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	LastLogin *time.Time `json:"last_login" db:"last_login"`
}

// NewUser initializes a user that has not been saved yet.
func NewUser(id, email, name, role string) *User {
	if role == "" {
		role = RoleUser
	}
	u := &User{
		ID:    id,
		Email: email,
		Role:  role,
	}
	if name != "" {
		u.Name = &name
	}
	return u
}

// TableName overrides the table name used by pop
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// GetName returns the display name or an empty string.
func (u *User) GetName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

// UpdateName sets the display name. An empty name clears it.
func (u *User) UpdateName(tx *storage.Connection, name string) error {
	if name == "" {
		u.Name = nil
	} else {
		u.Name = &name
	}
	return tx.UpdateColumns(u, "name")
}

// SetRole persists a new role for the user.
func (u *User) SetRole(tx *storage.Connection, role string) error {
	u.Role = role
	return tx.UpdateColumns(u, "role")
}

func findUser(tx *storage.Connection, query string, args ...interface{}) (*User, error) {
	obj := &User{}
	if err := tx.Q().Where(query, args...).First(obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, UserNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding user")
	}

	return obj, nil
}

func findUserForUpdate(tx *storage.Connection, id string) (*User, error) {
	obj := &User{}
	if err := tx.RawQuery(fmt.Sprintf("SELECT * FROM %q WHERE id = ? LIMIT 1 FOR UPDATE", obj.TableName()), id).First(obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, UserNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding user")
	}

	return obj, nil
}

// FindUserByID finds a user by the identity provider subject.
func FindUserByID(tx *storage.Connection, id string) (*User, error) {
	return findUser(tx, "id = ?", id)
}

// UpsertUserOnLogin records a successful login. A first login creates the
// user with the user role, later logins refresh email, name and last_login.
func UpsertUserOnLogin(tx *storage.Connection, id, email, name string) (*User, error) {
	var user *User
	err := tx.Transaction(func(tx *storage.Connection) error {
		now := time.Now().UTC()

		existing, terr := findUserForUpdate(tx, id)
		if terr != nil && !IsNotFoundError(terr) {
			return terr
		}

		if existing == nil {
			user = NewUser(id, email, name, RoleUser)
			user.LastLogin = &now
			if terr := tx.Create(user); terr != nil {
				return errors.Wrap(terr, "error creating user")
			}
			return nil
		}

		existing.Email = email
		existing.LastLogin = &now
		columns := []string{"email", "last_login"}
		if name != "" {
			existing.Name = &name
			columns = append(columns, "name")
		}
		if terr := tx.UpdateColumns(existing, columns...); terr != nil {
			return errors.Wrap(terr, "error updating user on login")
		}
		user = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// EnsureAdminUser makes sure the configured admin exists with the admin
// role. An empty id is a no-op and returns nil.
func EnsureAdminUser(tx *storage.Connection, id, email string) (*User, error) {
	if id == "" {
		return nil, nil
	}

	var user *User
	err := tx.Transaction(func(tx *storage.Connection) error {
		existing, terr := findUserForUpdate(tx, id)
		if terr != nil && !IsNotFoundError(terr) {
			return terr
		}

		if existing == nil {
			user = NewUser(id, email, adminDefaultName, RoleAdmin)
			if terr := tx.Create(user); terr != nil {
				return errors.Wrap(terr, "error creating admin user")
			}
			return nil
		}

		user = existing
		if existing.IsAdmin() {
			return nil
		}

		existing.Role = RoleAdmin
		columns := []string{"role"}
		if email != "" {
			existing.Email = email
			columns = append(columns, "email")
		}
		if terr := tx.UpdateColumns(existing, columns...); terr != nil {
			return errors.Wrap(terr, "error promoting admin user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
