package deps

import (
	"github.com/kingrea/agentpack/internal/definition"
	"github.com/kingrea/agentpack/internal/resource"
)

// Expand returns the references agent declares, grouped in
// resource.ExpansionOrder and in declaration order within a type. Workflow
// and persona declarations are left to team resolution. A reference declared
// twice by the same agent is returned once.
func Expand(agent *definition.Agent) []resource.Reference {
	if agent == nil {
		return nil
	}
	seen := map[resource.Key]struct{}{}
	var refs []resource.Reference
	for _, t := range resource.ExpansionOrder {
		for _, id := range agent.Dependencies[t] {
			ref := resource.NewReference(t, id)
			if _, dup := seen[ref.Key()]; dup {
				continue
			}
			seen[ref.Key()] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}
