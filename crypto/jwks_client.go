package crypto

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWKSVerifier interface {
	VerifyToken(ctx context.Context, tokenString string) (*HelixClaims, error)
}

var (
	ErrInvalidToken = errors.New("crypto: invalid token")
	ErrExpiredToken = errors.New("crypto: token expired")
)

type jwks struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKSConfig struct {
	URL             string        `envconfig:"JWKS_URL"`
	Issuer          string        `envconfig:"JWT_ISSUER"`
	Audience        string        `envconfig:"JWT_AUDIENCE"`
	RefreshInterval time.Duration `envconfig:"JWKS_REFRESH_INTERVAL" default:"15m"`
}

// CachingClient verifies RS256 tokens against a periodically refreshed key set.
// An unknown kid triggers one immediate refresh.
type CachingClient struct {
	cfg    JWKSConfig
	cache  map[string]*rsa.PublicKey
	mu     sync.RWMutex
	log    *slog.Logger
	client *http.Client
	parser *jwt.Parser
}

// NewJWKSCachingClient fetches the key set once and refreshes it until ctx is
// done.
func NewJWKSCachingClient(ctx context.Context, cfg JWKSConfig, logger *slog.Logger) (*CachingClient, error) {
	if cfg.URL == "" || cfg.Issuer == "" {
		return nil, errors.New("jwks client: URL and Issuer are mandatory")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Minute
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	c := &CachingClient{
		cfg:    cfg,
		cache:  make(map[string]*rsa.PublicKey),
		log:    logger.With("component", "jwks_client"),
		client: &http.Client{Timeout: 5 * time.Second},
		parser: jwt.NewParser(opts...),
	}

	if err := c.refreshKeys(ctx); err != nil {
		return nil, fmt.Errorf("jwks client: initial key fetch: %w", err)
	}

	go c.startKeyRefresher(ctx)

	return c, nil
}

func (c *CachingClient) startKeyRefresher(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	c.log.Info("JWKS refresher started", "interval", c.cfg.RefreshInterval.String(), "url", c.cfg.URL)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := c.refreshKeys(refreshCtx); err != nil {
				c.log.Error("Failed to refresh JWKS keys, keeping previous set", "error", err)
			}
			cancel()
		}
	}
}

func (c *CachingClient) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to decode JWKS response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Use != "sig" || jwk.Kid == "" {
			c.log.Debug("Skipping unusable JWK", "kid", jwk.Kid, "kty", jwk.Kty)
			continue
		}
		key, err := jwk.toRSAPublicKey()
		if err != nil {
			c.log.Warn("Failed to convert JWK to RSA key", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = key
	}

	if len(keys) == 0 {
		return errors.New("JWKS response contains zero valid RSA signature keys")
	}

	c.mu.Lock()
	c.cache = keys
	c.mu.Unlock()

	return nil
}

func (j *jsonWebKey) toRSAPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus (n): %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent (e): %w", err)
	}
	if len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid exponent (e): bad length")
	}

	e := 0
	for _, b := range eBytes {
		e = (e << 8) | int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent (e): value is zero")
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

func (c *CachingClient) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.cache[kid]
	return key, ok
}

func (c *CachingClient) VerifyToken(ctx context.Context, tokenString string) (*HelixClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &HelixClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrInvalidToken)
	}

	key, found := c.lookup(kid)
	if !found {
		c.log.WarnContext(ctx, "Unknown key id, refreshing key set", "kid", kid)
		if err := c.refreshKeys(ctx); err != nil {
			c.log.ErrorContext(ctx, "Immediate key refresh failed", "error", err)
			return nil, ErrInvalidToken
		}
		if key, found = c.lookup(kid); !found {
			return nil, ErrInvalidToken
		}
	}

	return c.verifyWithKey(tokenString, key)
}

func (c *CachingClient) verifyWithKey(tokenString string, key *rsa.PublicKey) (*HelixClaims, error) {
	token, err := c.parser.ParseWithClaims(tokenString, &HelixClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*HelixClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
