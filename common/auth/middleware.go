// Package auth authenticates console operators from bearer tokens and
// enforces per-route permissions.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aidin1998/txconsole/api/responses"
	"github.com/Aidin1998/txconsole/pkg/models"
	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
)

// Permissions understood by the transaction console
const (
	PermissionRead     = "transactions.read"
	PermissionModerate = "transactions.moderate"
	PermissionExport   = "transactions.export"
)

const actorKey = "actor"

// CustomClaims carries the operator profile next to the registered claims
type CustomClaims struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

type AuthorizationConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// Middleware validates an HS256 bearer token and stores the operator as the
// request actor.
func Middleware(log *slog.Logger, cfg AuthorizationConfig) gin.HandlerFunc {
	keyFunc := func(context.Context) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}
	customClaims := func() validator.CustomClaims {
		return &CustomClaims{}
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.Issuer,
		cfg.Audience,
		validator.WithAllowedClockSkew(30*time.Second),
		validator.WithCustomClaims(customClaims),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to set up the validator: %v", err))
	}

	return func(c *gin.Context) {
		errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
			log.WarnContext(r.Context(), "rejected bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
		}

		middleware := jwtmiddleware.New(
			jwtValidator.ValidateToken,
			jwtmiddleware.WithErrorHandler(errorHandler),
		)

		encounteredError := true
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			encounteredError = false
			claims, _ := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if claims == nil || claims.RegisteredClaims.Subject == "" {
				encounteredError = true
				return
			}
			actor := models.Actor{ID: claims.RegisteredClaims.Subject}
			if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
				actor.Name = custom.Name
				actor.Permissions = custom.Permissions
			}
			c.Set(actorKey, actor)
			c.Request = r
			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		if encounteredError {
			responses.Unauthorized(c, "a valid bearer token is required")
		}
	}
}

// RequirePermission rejects requests whose actor lacks perm
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			responses.Unauthorized(c, "a valid bearer token is required")
			return
		}
		if !actor.Can(perm) {
			responses.Forbidden(c, "missing permission "+perm)
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated operator of the request
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// WithActor sets the request actor directly; used where authentication
// happens upstream and in tests.
func WithActor(actor models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(actorKey, actor)
		c.Next()
	}
}
