package definition

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

// Team is the typed record parsed from a team document.
type Team struct {
	ID          string
	Name        string
	Icon        string
	Description string
	// Members may contain the wildcard token.
	Members   []string
	Workflows []string
	// MaxBundleSize overrides the configured bundle size limit when set.
	MaxBundleSize int
	ConfigBlock   string
}

type teamBlock struct {
	Bundle struct {
		ID            string `yaml:"id"`
		Name          string `yaml:"name"`
		Icon          string `yaml:"icon"`
		Description   string `yaml:"description"`
		MaxBundleSize int    `yaml:"max_bundle_size"`
	} `yaml:"bundle"`
	Agents    []string `yaml:"agents"`
	Workflows []string `yaml:"workflows"`
}

// ParseTeam decodes a team document. fallbackID is used when the document
// does not carry bundle.id, typically the file name without extension.
func ParseTeam(fallbackID, text string) (*Team, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if len(bytes.TrimSpace([]byte(normalized))) == 0 {
		return nil, apperrors.NewMalformedDefinitionError("team document is empty", nil)
	}
	var raw teamBlock
	if err := yaml.Unmarshal([]byte(normalized), &raw); err != nil {
		return nil, apperrors.NewMalformedDefinitionError("decode team document", err)
	}
	team := &Team{
		ID:            firstNonEmpty(raw.Bundle.ID, fallbackID),
		Name:          strings.TrimSpace(raw.Bundle.Name),
		Icon:          strings.TrimSpace(raw.Bundle.Icon),
		Description:   strings.TrimSpace(raw.Bundle.Description),
		Members:       trimAll(raw.Agents),
		Workflows:     trimAll(raw.Workflows),
		MaxBundleSize: raw.Bundle.MaxBundleSize,
		ConfigBlock:   strings.TrimRight(normalized, "\n"),
	}
	if team.ID == "" {
		return nil, apperrors.NewMalformedDefinitionError("team id is required", nil).WithField("bundle.id")
	}
	if team.Name == "" {
		return nil, apperrors.NewMalformedDefinitionError("team name is required", nil).WithField("bundle.name")
	}
	if team.MaxBundleSize < 0 {
		return nil, apperrors.NewMalformedDefinitionError("max_bundle_size must be >= 0", nil).WithField("bundle.max_bundle_size")
	}
	return team, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DefinitionID implements Definition.
func (t *Team) DefinitionID() string { return t.ID }

// Kind implements Definition.
func (t *Team) Kind() resource.Type { return resource.KindTeam }

// Block implements Definition.
func (t *Team) Block() string { return t.ConfigBlock }
