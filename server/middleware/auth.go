package middleware

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/godamri/helix-audit/http/response"
)

// AuthPayload decouples the strategy from the transport (HTTP/gRPC).
type AuthPayload struct {
	Headers    map[string]string
	RemoteAddr string
	Method     string
	Path       string
}

// AuthStrategy resolves the caller and returns a context carrying its
// identity. Strategies must not depend on the transport.
type AuthStrategy interface {
	Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error)
}

type AuthMiddleware struct {
	strategy AuthStrategy
	public   map[string]struct{}
}

// NewAuthMiddleware authenticates every call except the listed public gRPC
// methods or HTTP paths.
func NewAuthMiddleware(strategy AuthStrategy, public ...string) *AuthMiddleware {
	m := &AuthMiddleware{strategy: strategy, public: make(map[string]struct{}, len(public))}
	for _, p := range public {
		m.public[p] = struct{}{}
	}
	return m
}

func (m *AuthMiddleware) isPublic(path string) bool {
	_, ok := m.public[path]
	return ok
}

func (m *AuthMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			if len(v) > 0 {
				headers[http.CanonicalHeaderKey(k)] = v[0]
			}
		}

		ctx, err := m.strategy.Authenticate(r.Context(), AuthPayload{
			Headers:    headers,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
		})
		if err != nil {
			response.ErrorJSON(w, r, response.ErrInvalidToken, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) GRPCUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if m.isPublic(info.FullMethod) {
		return handler(ctx, req)
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is not provided")
	}

	headers := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > 0 {
			// gRPC metadata keys arrive lowercased.
			headers[http.CanonicalHeaderKey(k)] = v[0]
		}
	}

	remoteAddr := "0.0.0.0:0"
	if p, ok := peer.FromContext(ctx); ok {
		remoteAddr = p.Addr.String()
	}

	newCtx, err := m.strategy.Authenticate(ctx, AuthPayload{
		Headers:    headers,
		RemoteAddr: remoteAddr,
		Method:     info.FullMethod,
		Path:       info.FullMethod,
	})
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return handler(newCtx, req)
}

// GetHeader looks a header up case-insensitively.
func (p *AuthPayload) GetHeader(key string) string {
	if v, ok := p.Headers[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	for k, v := range p.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
