package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/models"
)

// UserUpdateParams parameters for updating a user profile
type UserUpdateParams struct {
	Name *string `json:"name"`
}

type UserProfileResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

func newUserProfileResponse(u *models.User) *UserProfileResponse {
	return &UserProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

func (a *API) loadProfile(r *http.Request) (*models.User, error) {
	ctx := r.Context()
	claims := getClaims(ctx)
	if claims == nil {
		return nil, unauthorizedError(apierrors.ErrorCodeNoAuthorization, "Authentication credentials were not provided")
	}

	db, err := a.dbConnection(ctx)
	if err != nil {
		return nil, err
	}

	user, err := models.FindUserByID(db, claims.Subject)
	if err != nil {
		if models.IsNotFoundError(err) {
			return nil, notFoundError(apierrors.ErrorCodeUserNotFound, "User profile not found")
		}
		return nil, internalServerError("Database error finding user").WithInternalError(err)
	}
	return user, nil
}

// UserGet returns the profile of the authenticated user
func (a *API) UserGet(w http.ResponseWriter, r *http.Request) error {
	user, err := a.loadProfile(r)
	if err != nil {
		return err
	}

	return sendJSON(w, http.StatusOK, newUserProfileResponse(user))
}

// UserUpdate updates the display name of the authenticated user
func (a *API) UserUpdate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	params := &UserUpdateParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	user, err := a.loadProfile(r)
	if err != nil {
		return err
	}

	if params.Name != nil {
		db, err := a.dbConnection(ctx)
		if err != nil {
			return err
		}
		if err := user.UpdateName(db, strings.TrimSpace(*params.Name)); err != nil {
			return internalServerError("Error updating user").WithInternalError(err)
		}
	}

	return sendJSON(w, http.StatusOK, newUserProfileResponse(user))
}
