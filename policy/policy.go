// Package policy is the coarse role based permission engine behind
// access.Decider. Policies are YAML documents mapping roles to the actions
// they may perform on a resource:
//
//	roles:
//	  auditor:
//	    - resource: audit_event
//	      actions: [view, create]
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// Wildcard matches any action or resource.
const Wildcard = "*"

type Rule struct {
	Resource string   `yaml:"resource" validate:"required"`
	Actions  []string `yaml:"actions" validate:"required,min=1,dive,required"`
}

type Document struct {
	Roles map[string][]Rule `yaml:"roles" validate:"dive,dive"`
}

// DefaultDocument is used when no policy file is configured.
func DefaultDocument() Document {
	return Document{Roles: map[string][]Rule{
		"audit.admin":  {{Resource: Wildcard, Actions: []string{Wildcard}}},
		"audit.viewer": {{Resource: "audit_event", Actions: []string{"view"}}},
		"audit.writer": {{Resource: "audit_event", Actions: []string{"create"}}},
	}}
}

type Engine struct {
	doc    *config.Container[Document]
	logger *slog.Logger
}

func NewEngine(doc Document, logger *slog.Logger) (*Engine, error) {
	c, err := config.NewContainer(doc)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return &Engine{doc: c, logger: logger.With("component", "policy_engine")}, nil
}

// LoadFile reads a policy document from path.
func LoadFile(path string) (Document, error) {
	doc, err := config.NewLoader[Document]("", path, config.FileOnly(), config.RequireFile()).Load()
	if err != nil {
		return Document{}, fmt.Errorf("policy: %w", err)
	}
	return *doc, nil
}

// Reload replaces the active document with the one at path. An invalid file
// keeps the previous document active.
func (e *Engine) Reload(path string) error {
	doc, err := LoadFile(path)
	if err != nil {
		return err
	}
	if err := e.doc.Update(doc); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	e.logger.Info("Policy reloaded", "path", path, "roles", len(doc.Roles), "version", e.doc.Version())
	return nil
}

// Watch reloads the policy whenever the file at path changes. It blocks until
// ctx is done.
func (e *Engine) Watch(ctx context.Context, path string, interval time.Duration) {
	config.NewFileWatcher(path, interval, e.logger).Watch(ctx, func() error {
		return e.Reload(path)
	})
}

// IsAllowed reports whether any role of the authenticated caller grants action
// on resource.
func (e *Engine) IsAllowed(ctx context.Context, action, resource string) bool {
	doc := e.doc.Get()
	for _, role := range contextx.GetAuthRoles(ctx) {
		for _, rule := range doc.Roles[role] {
			if !matches(rule.Resource, resource) {
				continue
			}
			if slices.ContainsFunc(rule.Actions, func(a string) bool { return matches(a, action) }) {
				return true
			}
		}
	}
	return false
}

func matches(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}
