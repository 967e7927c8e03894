package api

import (
	"context"
	"time"

	"github.com/funcsea/appbackend/internal/models"
)

// LoginStore keeps the one-time OIDC login state and records the users that
// finish a login.
type LoginStore interface {
	SaveState(ctx context.Context, state, nonce, codeVerifier string, ttl time.Duration) error
	// ConsumeState returns the state at most once. Unknown, consumed and
	// expired states are a models.OIDCStateNotFoundError.
	ConsumeState(ctx context.Context, state string) (*models.OIDCState, error)
	RecordLogin(ctx context.Context, id, email, name string) (*models.User, error)
}

type dbLoginStore struct {
	api *API
}

func (s dbLoginStore) SaveState(ctx context.Context, state, nonce, codeVerifier string, ttl time.Duration) error {
	db, err := s.api.dbConnection(ctx)
	if err != nil {
		return err
	}
	_, err = models.StoreOIDCState(db, state, nonce, codeVerifier, ttl)
	return err
}

func (s dbLoginStore) ConsumeState(ctx context.Context, state string) (*models.OIDCState, error) {
	db, err := s.api.dbConnection(ctx)
	if err != nil {
		return nil, err
	}
	return models.ConsumeOIDCState(db, state)
}

func (s dbLoginStore) RecordLogin(ctx context.Context, id, email, name string) (*models.User, error) {
	db, err := s.api.dbConnection(ctx)
	if err != nil {
		return nil, err
	}
	return models.UpsertUserOnLogin(db, id, email, name)
}

func (a *API) loginStore() LoginStore {
	if a.providerOpts.Logins != nil {
		return a.providerOpts.Logins
	}
	return dbLoginStore{api: a}
}
