// Package access decides whether a caller may read or record audit events.
//
// Reads are granted either by a coarse "view" permission on audit events or,
// failing that, by an admin-level link to the profile the events belong to.
package access

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	ResourceAuditEvent = "audit_event"
	ActionView         = "view"
	ActionCreate       = "create"
)

// Decider answers coarse permission checks for the caller carried in ctx.
type Decider interface {
	IsAllowed(ctx context.Context, action, resource string) bool
}

type ProfileType string

const (
	ProfileIndividual ProfileType = "individual"
	ProfileEmployer   ProfileType = "employer"
)

func ParseProfileType(s string) (ProfileType, bool) {
	switch ProfileType(s) {
	case ProfileIndividual, ProfileEmployer:
		return ProfileType(s), true
	}
	return "", false
}

// Label is the display name used in caller facing messages.
func (t ProfileType) Label() string { return string(t) }

// AccessLevel is totally ordered: reader < writer < admin.
type AccessLevel int

const (
	LevelReader AccessLevel = iota + 1
	LevelWriter
	LevelAdmin
)

func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch s {
	case "reader":
		return LevelReader, true
	case "writer":
		return LevelWriter, true
	case "admin":
		return LevelAdmin, true
	}
	return 0, false
}

// AtLeast reports whether l grants everything want grants.
func (l AccessLevel) AtLeast(want AccessLevel) bool { return l >= want }

type Scoper struct {
	decider  Decider
	required AccessLevel
	logger   *slog.Logger
}

func NewScoper(d Decider, logger *slog.Logger) *Scoper {
	return &Scoper{
		decider:  d,
		required: LevelAdmin,
		logger:   logger.With("component", "access_scoper"),
	}
}

// CanCreate is the coarse write check.
func (s *Scoper) CanCreate(ctx context.Context) bool {
	return s.decider.IsAllowed(ctx, ActionCreate, ResourceAuditEvent)
}

// CanView decides a read of the events of one business object. A false result
// is a silent denial; an error is a caller mistake that must be reported.
func (s *Scoper) CanView(ctx context.Context, links []contextx.ProfileLink, businessObjectType string, businessObjectID uuid.UUID) (bool, error) {
	if s.decider.IsAllowed(ctx, ActionView, ResourceAuditEvent) {
		return true, nil
	}

	expected, ok := ParseProfileType(businessObjectType)
	if !ok {
		s.logger.DebugContext(ctx, "business object is not a profile type", "business_object_type", businessObjectType)
		return false, nil
	}

	link, found := findLink(links, businessObjectID)
	if !found {
		return false, nil
	}

	if held, _ := ParseProfileType(link.ProfileType); held != expected {
		return false, audit.NewError(audit.ErrInvalidProfileType,
			"The specified profile is not of the expected type: "+expected.Label())
	}

	level, ok := ParseAccessLevel(link.AccessLevel)
	if !ok {
		s.logger.DebugContext(ctx, "unknown profile access level", "access_level", link.AccessLevel)
		return false, nil
	}
	return level.AtLeast(s.required), nil
}

func findLink(links []contextx.ProfileLink, id uuid.UUID) (contextx.ProfileLink, bool) {
	for _, l := range links {
		if l.ProfileID == id {
			return l, true
		}
	}
	return contextx.ProfileLink{}, false
}
