package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/godamri/helix-audit/crypto"
	"github.com/godamri/helix-audit/pkg/contextx"
)

var (
	errMissingAuthorization   = errors.New("missing authorization header")
	errMalformedAuthorization = errors.New("invalid authorization header format")
	errTokenRejected          = errors.New("invalid token")
	errNoSubject              = errors.New("token has no subject")
)

// JWTStrategy authenticates bearer tokens against the identity provider's key
// set. The token's roles feed the policy engine and its profile links feed
// per-profile access scoping.
type JWTStrategy struct {
	verifier crypto.JWKSVerifier
	logger   *slog.Logger
}

func NewJWTStrategy(verifier crypto.JWKSVerifier, logger *slog.Logger) *JWTStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTStrategy{
		verifier: verifier,
		logger:   logger.With("component", "jwt_strategy"),
	}
}

func (s *JWTStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	token, err := bearerToken(payload.GetHeader("Authorization"))
	if err != nil {
		return nil, err
	}

	claims, err := s.verifier.VerifyToken(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "JWT verification failed", "error", err, "ip", payload.RemoteAddr)
		return nil, errTokenRejected
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}

	links := claims.Links()
	ctx = contextx.WithAuthPrincipalID(ctx, claims.Subject)
	if claims.Sid != "" {
		ctx = contextx.WithAuthSessionID(ctx, claims.Sid)
	}
	ctx = contextx.WithAuthRoles(ctx, claims.GetRoles())
	ctx = contextx.WithProfileLinks(ctx, links)

	s.logger.DebugContext(ctx, "caller authenticated",
		"principal_id", claims.Subject,
		"roles", len(claims.Roles),
		"profile_links", len(links),
	)
	return ctx, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMalformedAuthorization
	}
	return strings.TrimSpace(token), nil
}
