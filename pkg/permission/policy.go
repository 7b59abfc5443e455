// Package permission provides PermissionGuard implementations backed by a YAML policy.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
	"gopkg.in/yaml.v3"
)

// RuleSpec is one policy rule as written in YAML.
//
//	rules:
//	  - session: "^com\\.demo\\..*"
//	    packages: [com.demo]
//	    uids: [1000]
//	    actions: [create, open, send]
//	    effect: allow
type RuleSpec struct {
	Session  string   `yaml:"session"`
	Packages []string `yaml:"packages"`
	UIDs     []int32  `yaml:"uids"`
	Actions  []string `yaml:"actions"`
	Effect   string   `yaml:"effect"`
}

// Document is the top-level YAML layout.
type Document struct {
	Default string     `yaml:"default"`
	Rules   []RuleSpec `yaml:"rules"`
}

type rule struct {
	index    int
	session  *regexp.Regexp
	packages []string
	uids     []int32
	actions  []domain.Action
	effect   domain.Decision
}

func (r rule) matches(origin domain.Origin, pkgName, sessionName string, action domain.Action) bool {
	if r.session != nil && !r.session.MatchString(sessionName) {
		return false
	}
	if len(r.packages) > 0 && !slices.Contains(r.packages, pkgName) {
		return false
	}
	if len(r.uids) > 0 && !slices.Contains(r.uids, origin.UID) {
		return false
	}
	if len(r.actions) > 0 && !slices.Contains(r.actions, action) {
		return false
	}
	return true
}

// Policy is a first-match rule list. An empty field in a rule matches anything.
type Policy struct {
	rules    []rule
	fallback domain.Decision
	logger   *slog.Logger
}

var _ ports.PermissionGuard = (*Policy)(nil)

// Option configures the Policy.
type Option func(*Policy)

// WithLogger configures a logger for denials.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

func parseEffect(s string, def domain.Decision) (domain.Decision, error) {
	switch s {
	case "":
		return def, nil
	case "allow":
		return domain.Allow, nil
	case "deny":
		return domain.Deny, nil
	}
	return domain.Deny, fmt.Errorf("unknown effect %q", s)
}

// Compile builds a Policy from a parsed document.
func Compile(doc Document, opts ...Option) (*Policy, error) {
	fallback, err := parseEffect(doc.Default, domain.Deny)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	p := &Policy{fallback: fallback, logger: logging.NewNop()}
	for i, spec := range doc.Rules {
		r := rule{index: i, packages: spec.Packages, uids: spec.UIDs}
		if spec.Session != "" {
			if r.session, err = regexp.Compile(spec.Session); err != nil {
				return nil, fmt.Errorf("rule %d: session: %w", i, err)
			}
		}
		for _, a := range spec.Actions {
			action, ok := domain.ParseAction(a)
			if !ok {
				return nil, fmt.Errorf("rule %d: unknown action %q", i, a)
			}
			r.actions = append(r.actions, action)
		}
		if r.effect, err = parseEffect(spec.Effect, domain.Allow); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		p.rules = append(p.rules, r)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse decodes and compiles YAML policy bytes.
func Parse(data []byte, opts ...Option) (*Policy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	return Compile(doc, opts...)
}

// Load reads a YAML policy file.
func Load(path string, opts ...Option) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return Parse(data, opts...)
}

// Explain returns the decision and the index of the deciding rule (-1 for the default).
func (p *Policy) Explain(origin domain.Origin, pkgName, sessionName string, action domain.Action) (domain.Decision, int) {
	for _, r := range p.rules {
		if r.matches(origin, pkgName, sessionName, action) {
			return r.effect, r.index
		}
	}
	return p.fallback, -1
}

// Check implements ports.PermissionGuard.
func (p *Policy) Check(ctx context.Context, origin domain.Origin, pkgName, sessionName string, action domain.Action) domain.Decision {
	decision, idx := p.Explain(origin, pkgName, sessionName, action)
	if decision != domain.Allow {
		p.logger.Info("permission denied",
			"pkg_name", pkgName, "session_name", sessionName,
			"action", action.String(), "uid", origin.UID, "pid", origin.PID, "rule", idx)
	}
	return decision
}

// Static is a guard with a fixed answer.
type Static domain.Decision

var (
	AllowAll ports.PermissionGuard = Static(domain.Allow)
	DenyAll  ports.PermissionGuard = Static(domain.Deny)
)

func (s Static) Check(context.Context, domain.Origin, string, string, domain.Action) domain.Decision {
	return domain.Decision(s)
}
