package definition

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

// Agent is the typed record parsed from an agent document.
type Agent struct {
	ID          string
	Name        string
	Title       string
	Icon        string
	Description string
	// ConfigBlock is the embedded yaml block exactly as written.
	ConfigBlock string
	// Dependencies holds ids as declared, keyed by type.
	Dependencies map[resource.Type][]string
	Commands     []Command
}

type agentIdentity struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Icon        string `yaml:"icon"`
	WhenToUse   string `yaml:"whenToUse"`
	Description string `yaml:"description"`
}

type agentBlock struct {
	Agent        agentIdentity       `yaml:"agent"`
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Title        string              `yaml:"title"`
	Description  string              `yaml:"description"`
	Dependencies map[string][]string `yaml:"dependencies"`
}

// ParseAgent extracts and decodes the configuration block of an agent
// document.
func ParseAgent(text string) (*Agent, error) {
	block, ok := ExtractBlock(text)
	if !ok {
		return nil, apperrors.NewMalformedDefinitionError("no yaml configuration block found", nil)
	}
	var raw agentBlock
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		// Quoted triggers followed by " - description" are not valid yaml.
		raw = agentBlock{}
		if retryErr := yaml.Unmarshal([]byte(StripCommandDescriptions(block)), &raw); retryErr != nil {
			return nil, apperrors.NewMalformedDefinitionError("decode configuration block", err)
		}
	}
	agent := &Agent{
		ID:          firstNonEmpty(raw.Agent.ID, raw.ID),
		Name:        firstNonEmpty(raw.Agent.Name, raw.Name),
		Title:       firstNonEmpty(raw.Agent.Title, raw.Title),
		Icon:        strings.TrimSpace(raw.Agent.Icon),
		Description: firstNonEmpty(raw.Agent.WhenToUse, raw.Agent.Description, raw.Description),
		ConfigBlock: block,
		Commands:    parseCommands(block),
	}
	if agent.ID == "" {
		return nil, apperrors.NewMalformedDefinitionError("agent id is required", nil).WithField("agent.id")
	}
	if agent.Name == "" {
		return nil, apperrors.NewMalformedDefinitionError("agent name is required", nil).WithField("agent.name")
	}
	deps, err := normalizeDependencies(raw.Dependencies)
	if err != nil {
		return nil, apperrors.NewMalformedDefinitionError("invalid dependencies", err).WithField("dependencies")
	}
	agent.Dependencies = deps
	return agent, nil
}

func normalizeDependencies(raw map[string][]string) (map[resource.Type][]string, error) {
	deps := make(map[resource.Type][]string, len(raw))
	for key, ids := range raw {
		t, err := resource.ParseType(key)
		if err != nil {
			return nil, err
		}
		for idx, id := range ids {
			trimmed := strings.TrimSpace(id)
			if trimmed == "" {
				return nil, fmt.Errorf("%s[%d] is empty", key, idx)
			}
			deps[t] = append(deps[t], trimmed)
		}
	}
	return deps, nil
}

// DefinitionID implements Definition.
func (a *Agent) DefinitionID() string { return a.ID }

// Kind implements Definition.
func (a *Agent) Kind() resource.Type { return resource.KindAgent }

// Block implements Definition.
func (a *Agent) Block() string { return a.ConfigBlock }

// Declares reports whether the agent lists ref among its dependencies.
func (a *Agent) Declares(ref resource.Reference) bool {
	for _, id := range a.Dependencies[ref.Type] {
		if resource.NewReference(ref.Type, id).Key() == ref.Key() {
			return true
		}
	}
	return false
}

// Triggers returns the normalized command triggers.
func (a *Agent) Triggers() []string {
	out := make([]string, 0, len(a.Commands))
	for _, cmd := range a.Commands {
		out = append(out, cmd.Trigger)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
