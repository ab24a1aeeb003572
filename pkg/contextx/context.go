package contextx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	AuthPrincipalIDKey contextKey = "helix.auth_principal_id" // sub
	AuthSessionIDKey   contextKey = "helix.auth_session_id"   // jti / sid
	AuthRolesKey       contextKey = "helix.auth_roles"
	ProfileLinksKey    contextKey = "helix.profile_links"

	TraceIDKey       contextKey = "helix.trace_id"
	RequestIDKey     contextKey = "helix.request_id"
	CorrelationIDKey contextKey = "helix.correlation_id"
	EntryPointKey    contextKey = "helix.entry_point" // http | grpc | consumer

	RetryAttemptKey contextKey = "helix.retry_attempt"
)

// ProfileLink is a caller-held relationship to a profile, as asserted by the
// identity provider. Type and level are kept raw; consumers parse them.
type ProfileLink struct {
	ProfileID   uuid.UUID `json:"profileId"`
	ProfileType string    `json:"profileType"`
	AccessLevel string    `json:"profileAccessLevel"`
}

func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey, "untriaged") }
func WithTraceID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TraceIDKey, v)
}

func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey, "") }
func WithRequestID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, RequestIDKey, v)
}

func GetCorrelationID(ctx context.Context) string { return getString(ctx, CorrelationIDKey, "") }
func WithCorrelationID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, v)
}

func GetEntryPoint(ctx context.Context) string { return getString(ctx, EntryPointKey, "unknown") }
func WithEntryPoint(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, EntryPointKey, v)
}

func GetAuthPrincipalID(ctx context.Context) string { return getString(ctx, AuthPrincipalIDKey, "") }
func WithAuthPrincipalID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthPrincipalIDKey, v)
}

func GetAuthSessionID(ctx context.Context) string { return getString(ctx, AuthSessionIDKey, "") }
func WithAuthSessionID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthSessionIDKey, v)
}

func GetAuthRoles(ctx context.Context) []string { return getStringSlice(ctx, AuthRolesKey) }
func WithAuthRoles(ctx context.Context, v []string) context.Context {
	return context.WithValue(ctx, AuthRolesKey, v)
}

func GetProfileLinks(ctx context.Context) []ProfileLink {
	if ctx == nil {
		return nil
	}
	if val, ok := ctx.Value(ProfileLinksKey).([]ProfileLink); ok {
		return val
	}
	return nil
}
func WithProfileLinks(ctx context.Context, v []ProfileLink) context.Context {
	return context.WithValue(ctx, ProfileLinksKey, v)
}

func GetRetryAttempt(ctx context.Context) int { return getInt(ctx, RetryAttemptKey, 0) }
func WithRetryAttempt(ctx context.Context, v int) context.Context {
	return context.WithValue(ctx, RetryAttemptKey, v)
}

func getString(ctx context.Context, key contextKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return fallback
}

func getInt(ctx context.Context, key contextKey, fallback int) int {
	if ctx == nil {
		return fallback
	}
	if val, ok := ctx.Value(key).(int); ok {
		return val
	}
	return fallback
}

func getStringSlice(ctx context.Context, key contextKey) []string {
	if ctx == nil {
		return nil
	}
	if val, ok := ctx.Value(key).([]string); ok {
		return val
	}
	return nil
}
