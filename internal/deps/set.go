package deps

import (
	"sort"

	"github.com/kingrea/agentpack/internal/definition"
	"github.com/kingrea/agentpack/internal/resource"
)

// Skipped records a member or reference dropped during best-effort
// resolution.
type Skipped struct {
	// Member is the agent that requested the reference, or the member id
	// itself when the agent could not be loaded.
	Member string
	// Ref is the zero Reference when the member itself was skipped.
	Ref resource.Reference
	Err error
}

// Set is the expanded, deduplicated input for one bundle target.
type Set struct {
	// Agents[0] is the coordinator for team targets and the agent itself for
	// single-agent targets.
	Agents    []*definition.Agent
	Resources []resource.Resolved
	Skipped   []Skipped
}

// Lead returns Agents[0], or nil for an empty set.
func (s *Set) Lead() *definition.Agent {
	if s == nil || len(s.Agents) == 0 {
		return nil
	}
	return s.Agents[0]
}

// Paths flattens the resolved resources into source paths, in bundle order.
func (s *Set) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Resources))
	for _, res := range s.Resources {
		out = append(out, res.Path)
	}
	return out
}

// CountByType tallies resources per type.
func (s *Set) CountByType() map[resource.Type]int {
	counts := map[resource.Type]int{}
	if s == nil {
		return counts
	}
	for _, res := range s.Resources {
		counts[res.Ref.Type]++
	}
	return counts
}

// Contains reports whether the set resolved key.
func (s *Set) Contains(key resource.Key) bool {
	if s == nil {
		return false
	}
	for _, res := range s.Resources {
		if res.Ref.Key() == key {
			return true
		}
	}
	return false
}

// AgentIDs lists the ordered agent ids.
func (s *Set) AgentIDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, a.ID)
	}
	return out
}

// Types returns the resource types present in the set, sorted.
func (s *Set) Types() []resource.Type {
	counts := s.CountByType()
	out := make([]resource.Type, 0, len(counts))
	for t := range counts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
