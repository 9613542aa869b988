package contracts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/agentpack/internal/definition"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

// Capability reserves a resource for exactly one agent.
type Capability struct {
	Resource resource.Reference
	Agent    string
}

// ParseCapability builds a capability from its configuration form, for
// example ("data#bmad-kb", "bmad-orchestrator").
func ParseCapability(ref, agent string) (Capability, error) {
	parsed, err := resource.ParseReference(ref)
	if err != nil {
		return Capability{}, apperrors.NewConfigError("capability resource", err).WithKey(ref)
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return Capability{}, apperrors.NewConfigError(fmt.Sprintf("capability %s needs a designated agent", parsed), nil).WithKey(ref)
	}
	return Capability{Resource: parsed, Agent: agent}, nil
}

// Set holds the capability contracts enforced during resolution. A nil Set
// enforces nothing.
type Set struct {
	caps []Capability
}

// NewSet validates caps. A resource may only be reserved once.
func NewSet(caps ...Capability) (*Set, error) {
	owners := map[resource.Key]string{}
	for _, c := range caps {
		if prev, ok := owners[c.Resource.Key()]; ok && prev != c.Agent {
			return nil, apperrors.NewConfigError(
				fmt.Sprintf("%s is reserved for both %s and %s", c.Resource, prev, c.Agent), nil,
			).WithKey(c.Resource.String())
		}
		owners[c.Resource.Key()] = c.Agent
	}
	return &Set{caps: append([]Capability(nil), caps...)}, nil
}

// Capabilities returns the configured contracts.
func (s *Set) Capabilities() []Capability {
	if s == nil {
		return nil
	}
	return append([]Capability(nil), s.caps...)
}

// Check enforces every contract against one agent's declared dependencies.
// Another agent declaring a reserved resource is a SecurityInvariantError;
// the designated agent not declaring it is a ConfigError wrapping
// ErrCapabilityMissing.
func (s *Set) Check(agent *definition.Agent) error {
	if s == nil || agent == nil {
		return nil
	}
	for _, c := range s.caps {
		declares := agent.Declares(c.Resource)
		switch {
		case declares && agent.ID != c.Agent:
			return apperrors.NewSecurityInvariantError(agent.ID, c.Resource.String(), c.Agent)
		case !declares && agent.ID == c.Agent:
			return apperrors.NewConfigError(
				fmt.Sprintf("%s must declare %s", agent.ID, c.Resource), apperrors.ErrCapabilityMissing,
			).WithKey(agent.ID)
		}
	}
	return nil
}

// Report summarizes an audit over many agents.
type Report struct {
	Violations []error
	Missing    []error
	// Malformed holds agents that could not be loaded for the audit.
	Malformed []error
}

// IsValid reports whether the audit found nothing.
func (r Report) IsValid() bool {
	return len(r.Violations) == 0 && len(r.Missing) == 0 && len(r.Malformed) == 0
}

// Err joins every finding, security violations first.
func (r Report) Err() error {
	if r.IsValid() {
		return nil
	}
	errs := append([]error(nil), r.Violations...)
	errs = append(errs, r.Missing...)
	return apperrors.Join(append(errs, r.Malformed...)...)
}

// Audit checks every agent in agents, sorted by id for stable output.
func (s *Set) Audit(agents []*definition.Agent) Report {
	sorted := append([]*definition.Agent(nil), agents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	var report Report
	for _, agent := range sorted {
		err := s.Check(agent)
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrSecurityInvariant):
			report.Violations = append(report.Violations, err)
		default:
			report.Missing = append(report.Missing, err)
		}
	}
	return report
}
