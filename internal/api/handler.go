package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/observability"
	"github.com/reyadatime/reyadatime/internal/storage"
)

// AvatarBucket is the logical bucket profile pictures are written to.
const AvatarBucket = "avatars"

type ReadinessCheck func(ctx context.Context) error

// Authenticator is the part of the auth client the HTTP surface drives.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, creds auth.Credentials) (auth.AuthResponse, error)
	SignUp(ctx context.Context, input auth.SignUpInput) (auth.AuthResponse, error)
}

// AuthFactory builds an Authenticator for one request. acceptLanguage is the
// caller's Accept-Language header and selects the message language.
type AuthFactory func(acceptLanguage string) Authenticator

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	Auth              AuthFactory
	Storage           *storage.Service
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	limiter := newClientRateLimiter(cfg.HTTP.AuthRatePerMinute, cfg.HTTP.AuthRateBurst, cfg.HTTP.TrustedProxies)
	mux.Handle("POST /v1/auth/signin", limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSignIn(deps, w, r)
	})))
	mux.Handle("POST /v1/auth/signup", limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSignUp(deps, w, r)
	})))

	// Browsing is anonymous unless the deployment requires auth everywhere.
	browse := func(h http.HandlerFunc) http.Handler {
		if cfg.Auth.Required && deps.AuthMiddleware != nil {
			return deps.AuthMiddleware(h)
		}
		return h
	}
	mux.Handle("GET /v1/countries", browse(func(w http.ResponseWriter, r *http.Request) {
		handleListCountries(deps, w, r)
	}))
	mux.Handle("GET /v1/countries/{id}/cities", browse(func(w http.ResponseWriter, r *http.Request) {
		handleListCities(deps, w, r)
	}))
	mux.Handle("GET /v1/facilities", browse(func(w http.ResponseWriter, r *http.Request) {
		handleListFacilities(deps, w, r)
	}))
	mux.Handle("GET /v1/facilities/{id}", browse(func(w http.ResponseWriter, r *http.Request) {
		handleGetFacility(deps, w, r)
	}))

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/profile", func(w http.ResponseWriter, r *http.Request) {
		handleGetProfile(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/profile", func(w http.ResponseWriter, r *http.Request) {
		handleUpdateProfile(deps, w, r)
	})
	protected.HandleFunc("POST /v1/profile/avatar", func(w http.ResponseWriter, r *http.Request) {
		handleUploadAvatar(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/owner/facilities", func(w http.ResponseWriter, r *http.Request) {
		handleListOwnedFacilities(deps, w, r)
	})
	protected.HandleFunc("GET /v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		handleListBookings(deps, w, r)
	})
	protected.HandleFunc("POST /v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		handleCreateBooking(deps, w, r)
	})
	protected.HandleFunc("POST /v1/bookings/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		handleCancelBooking(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth middleware missing, protected routes disabled")
		}
		protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is not configured", false, nil)
		})
	} else {
		protectedHandler = deps.AuthMiddleware(protectedHandler)
	}
	mux.Handle("GET /v1/profile", protectedHandler)
	mux.Handle("PATCH /v1/profile", protectedHandler)
	mux.Handle("POST /v1/profile/avatar", protectedHandler)
	mux.Handle("GET /v1/owner/facilities", protectedHandler)
	mux.Handle("GET /v1/bookings", protectedHandler)
	mux.Handle("POST /v1/bookings", protectedHandler)
	mux.Handle("POST /v1/bookings/{id}/cancel", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.DSN == "" {
			return errors.New("database dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeDomainError maps an error kind onto a status and error code.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	e := errs.From(err)
	switch e.Kind {
	case errs.KindNotFound:
		writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", e.Message, false, nil)
	case errs.KindAmbiguous:
		writeError(ctx, w, http.StatusConflict, "AMBIGUOUS_RESULT", e.Message, false, nil)
	case errs.KindConflict:
		writeError(ctx, w, http.StatusConflict, "CONFLICT", e.Message, false, nil)
	case errs.KindValidation:
		writeError(ctx, w, http.StatusBadRequest, "VALIDATION_FAILED", e.Message, false, nil)
	case errs.KindInvalidCredentials:
		writeError(ctx, w, http.StatusUnauthorized, "INVALID_CREDENTIALS", e.Message, false, nil)
	case errs.KindAuthState:
		writeError(ctx, w, http.StatusUnauthorized, "SESSION_REQUIRED", e.Message, false, nil)
	default:
		writeError(ctx, w, http.StatusBadGateway, "UPSTREAM_ERROR", "upstream request failed", true, map[string]any{"details": e.Error()})
	}
}

func newStrictDecoder(body io.Reader) *json.Decoder {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := newStrictDecoder(r.Body).Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

// requireUser returns the caller's user id or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.UserID == "" {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", false, nil)
		return "", false
	}
	return identity.UserID, true
}

func requireCatalog(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return false
	}
	return true
}
