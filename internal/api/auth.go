package api

import (
	"context"
	"net/http"
	"regexp"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/tokens"
)

var bearerRegexp = regexp.MustCompile(`^(?:B|b)earer (\S+$)`)

// requireAuthentication checks incoming requests for a valid application JWT
// and stores its claims in the request context.
func (a *API) requireAuthentication(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	token, err := a.extractBearerToken(r)
	if err != nil {
		return nil, err
	}

	return a.parseJWTClaims(token, r)
}

// optionalAuthentication is requireAuthentication for routes that also serve
// anonymous callers. A missing or invalid token leaves the context as is.
func (a *API) optionalAuthentication(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	token, err := a.extractBearerToken(r)
	if err != nil {
		return r.Context(), nil
	}

	ctx, err := a.parseJWTClaims(token, r)
	if err != nil {
		observability.GetLogEntry(r).WithError(err).Debug("ignoring invalid optional bearer token")
		return r.Context(), nil
	}
	return ctx, nil
}

// requireAdmin must run after requireAuthentication.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	ctx := r.Context()
	claims := getClaims(ctx)
	if claims == nil {
		return nil, unauthorizedError(apierrors.ErrorCodeNoAuthorization, "Authentication credentials were not provided")
	}

	if claims.Role != models.RoleAdmin {
		return nil, forbiddenError(apierrors.ErrorCodeNotAdmin, "Admin access required")
	}

	return ctx, nil
}

func (a *API) extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	matches := bearerRegexp.FindStringSubmatch(authHeader)
	if len(matches) != 2 {
		return "", unauthorizedError(apierrors.ErrorCodeNoAuthorization, "Authentication credentials were not provided")
	}

	return matches[1], nil
}

func (a *API) parseJWTClaims(bearer string, r *http.Request) (context.Context, error) {
	ctx := r.Context()
	config := a.config

	claims, err := tokens.ParseAccessToken(&config.JWT, bearer)
	if err != nil {
		if errors.Is(err, tokens.ErrMissingSecret) {
			return nil, internalServerError("Authentication service is misconfigured").WithInternalError(err)
		}
		return nil, unauthorizedError(apierrors.ErrorCodeBadJWT, "%s", err.Error()).WithInternalError(err)
	}

	if claims.Role == "" {
		claims.Role = models.RoleUser
	}

	observability.LogEntrySetField(r, "user_id", claims.Subject)

	ctx = withClaims(ctx, claims)
	return ctx, nil
}
