// Package catalog loads the agent and team definitions visible in one
// root/pack context.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/agentpack/internal/definition"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
	"github.com/kingrea/agentpack/internal/tier"
)

// Catalog parses each definition at most once. It is safe for concurrent use.
type Catalog struct {
	tiers *tier.Resolver

	agents sync.Map // id -> agentEntry

	teamsOnce sync.Once
	teams     map[string]teamEntry
	teamIDs   []string
	teamsErr  error
}

type agentEntry struct {
	agent *definition.Agent
	err   error
}

type teamEntry struct {
	team *definition.Team
	err  error
	tier resource.Tier
}

// New creates a catalog reading through tiers.
func New(tiers *tier.Resolver) *Catalog {
	return &Catalog{tiers: tiers}
}

// Tiers returns the resolver backing the catalog.
func (c *Catalog) Tiers() *tier.Resolver {
	return c.tiers
}

// AgentIDs returns every agent id visible in the context, sorted.
func (c *Catalog) AgentIDs() ([]string, error) {
	return c.tiers.List(resource.KindAgent)
}

// OwnAgentIDs returns the agents defined in the context's own tier: the pack
// tier for pack contexts, the shared tier otherwise.
func (c *Catalog) OwnAgentIDs() ([]string, error) {
	return c.tiers.ListTier(c.ownTier(), resource.KindAgent)
}

// Agent loads and parses the agent document for id.
func (c *Catalog) Agent(id string) (*definition.Agent, error) {
	if cached, ok := c.agents.Load(id); ok {
		entry := cached.(agentEntry)
		return entry.agent, entry.err
	}
	agent, err := c.loadAgent(id)
	c.agents.Store(id, agentEntry{agent: agent, err: err})
	return agent, err
}

func (c *Catalog) loadAgent(id string) (*definition.Agent, error) {
	res, err := c.tiers.Resolve(resource.NewReference(resource.KindAgent, id))
	if err != nil {
		return nil, err
	}
	agent, err := definition.ParseAgent(res.Content)
	if err != nil {
		return nil, withSource(err, res.Path)
	}
	if agent.ID != id {
		return nil, apperrors.NewMalformedDefinitionError(
			fmt.Sprintf("agent id %q does not match file name %q", agent.ID, id), nil,
		).WithSource(res.Path).WithField("agent.id")
	}
	return agent, nil
}

// Agents loads every agent in ids. The first failure is returned.
func (c *Catalog) Agents(ids []string) ([]*definition.Agent, error) {
	out := make([]*definition.Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := c.Agent(id)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, nil
}

// TeamIDs returns every team visible in the context, sorted. Teams that
// failed to parse are listed too; Team reports their error.
func (c *Catalog) TeamIDs() ([]string, error) {
	if err := c.loadTeams(); err != nil {
		return nil, err
	}
	return append([]string(nil), c.teamIDs...), nil
}

// OwnTeamIDs returns the teams defined in the context's own tier.
func (c *Catalog) OwnTeamIDs() ([]string, error) {
	if err := c.loadTeams(); err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range c.teamIDs {
		if c.teams[id].tier == c.ownTier() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Team returns the team named id.
func (c *Catalog) Team(id string) (*definition.Team, error) {
	if err := c.loadTeams(); err != nil {
		return nil, err
	}
	entry, ok := c.teams[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(string(resource.KindTeam), id).WithContext(c.tiers.Pack())
	}
	return entry.team, entry.err
}

// loadTeams reads yaml teams through tier precedence, then Go-scripted teams.
// A yaml team shadows a scripted team with the same id. Parse failures are
// kept per team so one broken document does not hide the others.
func (c *Catalog) loadTeams() error {
	c.teamsOnce.Do(func() {
		teams := map[string]teamEntry{}
		ids, err := c.tiers.List(resource.KindTeam)
		if err != nil {
			c.teamsErr = err
			return
		}
		for _, id := range ids {
			res, err := c.tiers.Resolve(resource.NewReference(resource.KindTeam, id))
			if err != nil {
				c.teamsErr = err
				return
			}
			team, err := definition.ParseTeam(id, res.Content)
			if err != nil {
				teams[id] = teamEntry{err: withSource(err, res.Path), tier: res.Tier}
				continue
			}
			teams[team.ID] = teamEntry{team: team, tier: res.Tier}
		}
		scripts, err := c.tiers.Files(resource.KindTeam, ".go")
		if err != nil {
			c.teamsErr = err
			return
		}
		for _, script := range scripts {
			scripted, err := definition.LoadTeamScript(script.Ref.ID, []byte(script.Content))
			if err != nil {
				if _, exists := teams[script.Ref.ID]; !exists {
					teams[script.Ref.ID] = teamEntry{err: fmt.Errorf("catalog: %s: %w", script.Path, err), tier: script.Tier}
				}
				continue
			}
			for _, team := range scripted {
				if _, exists := teams[team.ID]; !exists {
					teams[team.ID] = teamEntry{team: team, tier: script.Tier}
				}
			}
		}
		c.teams = teams
		c.teamIDs = make([]string, 0, len(teams))
		for id := range teams {
			c.teamIDs = append(c.teamIDs, id)
		}
		sort.Strings(c.teamIDs)
	})
	return c.teamsErr
}

func withSource(err error, source string) error {
	var malformed *apperrors.MalformedDefinitionError
	if apperrors.As(err, &malformed) && malformed.Source == "" {
		malformed.WithSource(source)
	}
	return err
}

func (c *Catalog) ownTier() resource.Tier {
	if c.tiers.Pack() != "" {
		return resource.TierPack
	}
	return resource.TierShared
}
