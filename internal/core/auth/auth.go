// Package auth provides HMAC-based API key authentication for the
// verification endpoints, as a gRPC interceptor and as HTTP middleware.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderAPIKey carries the key in HTTP headers and gRPC metadata.
const HeaderAPIKey = "x-api-key"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const clientKey = contextKey("client")

// Queries is the subset of *db.Queries the authenticator needs.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Client identifies an authenticated API key.
type Client struct {
	ID   string `db:"api_key_id"`
	Name string `db:"name"`
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
	logger  *slog.Logger
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
		logger:  logger,
	}
}

// Authenticate validates an API key and returns its client.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Client, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Client{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Client{}, ErrUnknownKey
	}

	var row struct {
		Client
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.Get(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrInvalidKey
	}
	if err != nil {
		return Client{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if row.RevokedAt.Valid {
		return Client{}, ErrKeyRevoked
	}

	// 1-minute throttle keeps busy clients from writing on every request
	now := a.now().UTC()
	if !row.LastUsedAt.Valid || now.Sub(row.LastUsedAt.Time) > time.Minute {
		if _, err := a.queries.Exec(ctx, "update-last-used", now, row.ID); err != nil {
			a.logger.WarnContext(ctx, "failed to record api key use", "api_key_id", row.ID, "error", err)
		}
	}

	return row.Client, nil
}

// Issue creates an API key for name under the newest configured secret.
// The key is returned once; only its HMAC is stored.
func (a *Authenticator) Issue(ctx context.Context, name string) (string, Client, error) {
	if len(a.secrets) == 0 {
		return "", Client{}, ErrNoSecrets
	}
	// secret ids are UUIDv7, so the greatest id is the newest secret
	secretID := slices.Max(slices.Collect(maps.Keys(a.secrets)))

	apiKey, err := GenerateAPIKey(secretID)
	if err != nil {
		return "", Client{}, err
	}

	client := Client{ID: uuid.Must(uuid.NewV7()).String(), Name: name}
	_, err = a.queries.Exec(ctx, "insert-api-key",
		client.ID, name, secretID, ComputeHMAC(a.secrets[secretID], apiKey), a.now().UTC())
	if err != nil {
		return "", Client{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return apiKey, client, nil
}

// Revoke blocks the key with the given id. Revoking twice is an error.
func (a *Authenticator) Revoke(ctx context.Context, apiKeyID string) error {
	res, err := a.queries.Exec(ctx, "revoke-api-key", a.now().UTC(), apiKeyID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s: %w", apiKeyID, ErrInvalidKey)
	}
	return nil
}

// grpcCode maps authentication failures to status codes.
func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrStore):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

// httpStatus maps authentication failures to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return http.StatusForbidden
	case errors.Is(err, ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Methods listed in skip (e.g. health checks) pass through.
func (a *Authenticator) UnaryInterceptor(skip ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if slices.Contains(skip, info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		apiKeys := md.Get(HeaderAPIKey)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		client, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			return nil, status.Error(grpcCode(err), err.Error())
		}
		return handler(WithClient(ctx, client), req)
	}
}

// Middleware authenticates HTTP requests by the x-api-key header.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(HeaderAPIKey)
		if apiKey == "" {
			http.Error(w, ErrMissingKey.Error(), http.StatusUnauthorized)
			return
		}

		client, err := a.Authenticate(r.Context(), apiKey)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
	})
}

// WithClient stores the authenticated client in ctx.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext extracts the authenticated client.
// Returns false when the request was not authenticated.
func ClientFromContext(ctx context.Context) (Client, bool) {
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}
