package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/storage"
)

// DefaultOIDCStateTTL is how long a login attempt may take between the
// authorize redirect and the callback.
const DefaultOIDCStateTTL = 10 * time.Minute

// OIDCState holds the per-login secrets between the authorize redirect and
// the callback. A row is consumed exactly once.
type OIDCState struct {
	ID           uuid.UUID `json:"id" db:"id"`
	State        string    `json:"state" db:"state"`
	Nonce        string    `json:"-" db:"nonce"`
	CodeVerifier string    `json:"-" db:"code_verifier"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (OIDCState) TableName() string {
	return "oidc_states"
}

// NewOIDCState builds an unsaved state row expiring ttl from now.
func NewOIDCState(state, nonce, codeVerifier string, ttl time.Duration) (*OIDCState, error) {
	if ttl <= 0 {
		ttl = DefaultOIDCStateTTL
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "error generating unique id")
	}

	now := time.Now().UTC()
	return &OIDCState{
		ID:           id,
		State:        state,
		Nonce:        nonce,
		CodeVerifier: codeVerifier,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}, nil
}

// IsExpired reports whether the state can no longer be used at t.
func (s *OIDCState) IsExpired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

func deleteExpiredOIDCStates(tx *storage.Connection) error {
	if err := tx.RawQuery(fmt.Sprintf("DELETE FROM %q WHERE expires_at < ?", OIDCState{}.TableName()), time.Now().UTC()).Exec(); err != nil {
		return errors.Wrap(err, "error deleting expired oidc states")
	}
	return nil
}

// StoreOIDCState removes expired states and saves a new one.
func StoreOIDCState(tx *storage.Connection, state, nonce, codeVerifier string, ttl time.Duration) (*OIDCState, error) {
	obj, err := NewOIDCState(state, nonce, codeVerifier, ttl)
	if err != nil {
		return nil, err
	}

	if err := tx.Transaction(func(tx *storage.Connection) error {
		if terr := deleteExpiredOIDCStates(tx); terr != nil {
			return terr
		}
		if terr := tx.Create(obj); terr != nil {
			return errors.Wrap(terr, "error saving oidc state")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return obj, nil
}

// ConsumeOIDCState loads and deletes the state in one transaction, so a
// state value is accepted at most once. Unknown, consumed and expired states
// all return OIDCStateNotFoundError.
func ConsumeOIDCState(tx *storage.Connection, state string) (*OIDCState, error) {
	if state == "" {
		return nil, OIDCStateNotFoundError{}
	}

	obj := &OIDCState{}
	if err := tx.Transaction(func(tx *storage.Connection) error {
		if terr := deleteExpiredOIDCStates(tx); terr != nil {
			return terr
		}

		query := fmt.Sprintf("SELECT * FROM %q WHERE state = ? AND expires_at > ? LIMIT 1 FOR UPDATE", obj.TableName())
		if terr := tx.RawQuery(query, state, time.Now().UTC()).First(obj); terr != nil {
			if errors.Cause(terr) == sql.ErrNoRows {
				return OIDCStateNotFoundError{}
			}
			return errors.Wrap(terr, "error finding oidc state")
		}

		if terr := tx.Destroy(obj); terr != nil {
			return errors.Wrap(terr, "error deleting oidc state")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return obj, nil
}
