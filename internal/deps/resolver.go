package deps

import (
	"fmt"
	"sort"

	"github.com/kingrea/agentpack/internal/contracts"
	"github.com/kingrea/agentpack/internal/definition"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/resource"
)

// Mode selects how per-member failures are handled.
type Mode int

const (
	// Strict aborts resolution on the first missing member or resource.
	Strict Mode = iota
	// BestEffort records misses in Set.Skipped and keeps going.
	BestEffort
)

func (m Mode) String() string {
	if m == BestEffort {
		return "best-effort"
	}
	return "strict"
}

// Roles names the agents with special membership rules.
type Roles struct {
	// Coordinator is placed first in every team.
	Coordinator string
	// SingleOperator is never added by wildcard expansion.
	SingleOperator string
	// Wildcard expands to every other known agent.
	Wildcard string
}

// DefaultRoles returns the stock role ids.
func DefaultRoles() Roles {
	return Roles{Coordinator: "bmad-orchestrator", SingleOperator: "bmad-master", Wildcard: "*"}
}

// AgentSource loads agent definitions for one context. *catalog.Catalog
// implements it.
type AgentSource interface {
	Agent(id string) (*definition.Agent, error)
	AgentIDs() ([]string, error)
}

// ResourceSource resolves references for one context. *tier.Resolver
// implements it.
type ResourceSource interface {
	Resolve(ref resource.Reference) (resource.Resolved, error)
}

// Options configure a Resolver.
type Options struct {
	Roles     Roles
	Mode      Mode
	Contracts *contracts.Set
	Logger    *logging.Logger
}

// Resolver builds dependency sets for agents and teams.
type Resolver struct {
	agents    AgentSource
	resources ResourceSource
	opts      Options
}

// NewResolver returns a resolver. Empty role fields fall back to
// DefaultRoles.
func NewResolver(agents AgentSource, resources ResourceSource, opts Options) *Resolver {
	defaults := DefaultRoles()
	if opts.Roles.Coordinator == "" {
		opts.Roles.Coordinator = defaults.Coordinator
	}
	if opts.Roles.SingleOperator == "" {
		opts.Roles.SingleOperator = defaults.SingleOperator
	}
	if opts.Roles.Wildcard == "" {
		opts.Roles.Wildcard = defaults.Wildcard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Resolver{agents: agents, resources: resources, opts: opts}
}

// Mode returns the failure mode the resolver runs in.
func (r *Resolver) Mode() Mode {
	return r.opts.Mode
}

// ResolveAgent builds the set for a single-agent bundle.
func (r *Resolver) ResolveAgent(agent *definition.Agent) (*Set, error) {
	if err := r.opts.Contracts.Check(agent); err != nil {
		return nil, err
	}
	set := &Set{Agents: []*definition.Agent{agent}}
	b := r.newBuilder(set)
	for _, ref := range Expand(agent) {
		if err := b.add(agent.ID, ref); err != nil {
			return nil, fmt.Errorf("deps: agent %s: %w", agent.ID, err)
		}
	}
	return set, nil
}

// ResolveTeam builds the set for a team bundle: the coordinator first, then
// declared and wildcard members, then their resources deduplicated by
// (type, id), then the team's workflows.
func (r *Resolver) ResolveTeam(team *definition.Team) (*Set, error) {
	all, err := r.agents.AgentIDs()
	if err != nil {
		return nil, fmt.Errorf("deps: team %s: list agents: %w", team.ID, err)
	}
	log := r.opts.Logger.WithTarget("team#" + team.ID)
	coordinator, err := r.agents.Agent(r.opts.Roles.Coordinator)
	if err != nil {
		return nil, fmt.Errorf("deps: team %s: coordinator: %w", team.ID, err)
	}
	set := &Set{Agents: []*definition.Agent{coordinator}}
	for _, id := range ExpandMembers(team.Members, all, r.opts.Roles) {
		agent, err := r.agents.Agent(id)
		if err != nil {
			if !r.absorb(err) {
				return nil, fmt.Errorf("deps: team %s: member %s: %w", team.ID, id, err)
			}
			log.Warn("skipping team member", "member", id, "error", err.Error())
			set.Skipped = append(set.Skipped, Skipped{Member: id, Err: err})
			continue
		}
		set.Agents = append(set.Agents, agent)
	}

	b := r.newBuilder(set)
	for _, agent := range set.Agents {
		if err := r.opts.Contracts.Check(agent); err != nil {
			return nil, err
		}
		for _, ref := range Expand(agent) {
			if err := b.add(agent.ID, ref); err != nil {
				return nil, fmt.Errorf("deps: team %s: member %s: %w", team.ID, agent.ID, err)
			}
		}
	}
	for _, id := range team.Workflows {
		if err := b.add(team.ID, resource.NewReference(resource.TypeWorkflow, id)); err != nil {
			return nil, fmt.Errorf("deps: team %s: %w", team.ID, err)
		}
	}
	return set, nil
}

// ExpandMembers returns the team's members in bundle order, excluding the
// coordinator. The wildcard is replaced in place by every id in all, sorted,
// that is not the coordinator, the single-operator agent or explicitly
// listed. Duplicates are dropped.
func ExpandMembers(declared, all []string, roles Roles) []string {
	explicit := map[string]struct{}{}
	for _, id := range declared {
		if id != roles.Wildcard {
			explicit[id] = struct{}{}
		}
	}
	sorted := append([]string(nil), all...)
	sort.Strings(sorted)

	seen := map[string]struct{}{roles.Coordinator: {}, roles.Wildcard: {}}
	var out []string
	add := func(id string) {
		if _, dup := seen[id]; dup || id == "" {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range declared {
		if id != roles.Wildcard {
			add(id)
			continue
		}
		for _, candidate := range sorted {
			if _, listed := explicit[candidate]; listed {
				continue
			}
			if candidate == roles.SingleOperator {
				continue
			}
			add(candidate)
		}
	}
	return out
}

// absorb reports whether err may be recorded as skipped rather than failing
// resolution.
func (r *Resolver) absorb(err error) bool {
	if r.opts.Mode != BestEffort || apperrors.IsFatal(err) {
		return false
	}
	return apperrors.Is(err, apperrors.ErrNotFound) || apperrors.Is(err, apperrors.ErrMalformedDefinition)
}

type builder struct {
	r    *Resolver
	set  *Set
	seen map[resource.Key]struct{}
}

func (r *Resolver) newBuilder(set *Set) *builder {
	return &builder{r: r, set: set, seen: map[resource.Key]struct{}{}}
}

// add resolves ref unless an earlier requester already did. Position is
// decided by the first requester; content always comes from the resolver's
// tier precedence.
func (b *builder) add(member string, ref resource.Reference) error {
	if _, dup := b.seen[ref.Key()]; dup {
		return nil
	}
	b.seen[ref.Key()] = struct{}{}
	res, err := b.r.resources.Resolve(ref)
	if err != nil {
		if !b.r.absorb(err) {
			return err
		}
		b.r.opts.Logger.Warn("skipping dependency", "member", member, "resource", ref.String(), "error", err.Error())
		b.set.Skipped = append(b.set.Skipped, Skipped{Member: member, Ref: ref, Err: err})
		return nil
	}
	b.set.Resources = append(b.set.Resources, res)
	return nil
}
