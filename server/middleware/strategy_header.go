package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/godamri/helix-audit/pkg/contextx"
)

// TrustedHeaderStrategy accepts identity asserted by an upstream gateway, but
// only from configured proxy addresses.
type TrustedHeaderStrategy struct {
	trustedCIDRs []*net.IPNet
	logger       *slog.Logger

	headerUserID       string
	headerRoles        string
	headerProfileLinks string
}

type TrustedHeaderConfig struct {
	// TrustedProxies lists gateway addresses, e.g. 127.0.0.1/32,10.0.0.0/8.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	HeaderUserID   string   `envconfig:"HEADER_USER_ID" default:"X-Helix-User-ID"`
	// HeaderRoles carries a comma separated role list.
	HeaderRoles string `envconfig:"HEADER_ROLES" default:"X-Helix-Role"`
	// HeaderProfileLinks carries a JSON array of profile links.
	HeaderProfileLinks string `envconfig:"HEADER_PROFILE_LINKS" default:"X-Helix-Profile-Links"`
}

func NewTrustedHeaderStrategy(cfg TrustedHeaderConfig, logger *slog.Logger) (*TrustedHeaderStrategy, error) {
	if len(cfg.TrustedProxies) == 0 {
		return nil, errors.New("security_risk: trusted_proxies list cannot be empty in gateway mode")
	}

	cidrs := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, cidr := range cfg.TrustedProxies {
		cidr = strings.TrimSpace(cidr)
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid cidr configuration: %s", cidr)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			cidr = fmt.Sprintf("%s/%d", cidr, bits)
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr configuration: %s", cidr)
		}
		cidrs = append(cidrs, ipNet)
	}

	if cfg.HeaderUserID == "" {
		cfg.HeaderUserID = "X-Helix-User-ID"
	}
	if cfg.HeaderRoles == "" {
		cfg.HeaderRoles = "X-Helix-Role"
	}
	if cfg.HeaderProfileLinks == "" {
		cfg.HeaderProfileLinks = "X-Helix-Profile-Links"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TrustedHeaderStrategy{
		trustedCIDRs:       cidrs,
		logger:             logger.With("component", "trusted_header_strategy"),
		headerUserID:       cfg.HeaderUserID,
		headerRoles:        cfg.HeaderRoles,
		headerProfileLinks: cfg.HeaderProfileLinks,
	}, nil
}

func (s *TrustedHeaderStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	host, _, err := net.SplitHostPort(payload.RemoteAddr)
	if err != nil {
		s.logger.WarnContext(ctx, "Auth rejected: failed to parse remote addr", "addr", payload.RemoteAddr)
		return nil, errors.New("unauthorized gateway connection")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, errors.New("invalid remote ip")
	}

	if !s.trusted(ip) {
		s.logger.WarnContext(ctx, "SECURITY ALERT: Untrusted IP attempted to spoof Gateway",
			"ip", host,
			"path", payload.Path,
		)
		return nil, errors.New("forbidden: untrusted source")
	}

	userID := payload.GetHeader(s.headerUserID)
	if userID == "" {
		return nil, errors.New("missing identity header")
	}

	roles := []string{}
	for _, role := range strings.Split(payload.GetHeader(s.headerRoles), ",") {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}

	var links []contextx.ProfileLink
	if raw := payload.GetHeader(s.headerProfileLinks); raw != "" {
		if err := json.Unmarshal([]byte(raw), &links); err != nil {
			return nil, errors.New("malformed profile links header")
		}
	}

	ctx = contextx.WithAuthPrincipalID(ctx, userID)
	ctx = contextx.WithAuthRoles(ctx, roles)
	ctx = contextx.WithProfileLinks(ctx, links)

	return ctx, nil
}

func (s *TrustedHeaderStrategy) trusted(ip net.IP) bool {
	for _, cidr := range s.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
