// Package definition parses agent and team documents into typed records.
//
// Agent documents are markdown files with a fenced yaml block somewhere in
// the body; team documents are plain yaml. Only the configuration block is
// retained after parsing.
package definition

import (
	"path"
	"strings"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

// Definition is implemented by *Agent and *Team.
type Definition interface {
	DefinitionID() string
	Kind() resource.Type
	// Block returns the configuration block verbatim.
	Block() string
}

// Parse decodes the document stored at name. Markdown documents carrying a
// fenced yaml block are agents; anything else is read as a team.
func Parse(name, text string) (Definition, error) {
	if _, ok := ExtractBlock(text); ok || path.Ext(name) == ".md" {
		agent, err := ParseAgent(text)
		if err != nil {
			return nil, withSource(err, name)
		}
		return agent, nil
	}
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))
	team, err := ParseTeam(stem, text)
	if err != nil {
		return nil, withSource(err, name)
	}
	return team, nil
}

func withSource(err error, source string) error {
	var malformed *apperrors.MalformedDefinitionError
	if apperrors.As(err, &malformed) && malformed.Source == "" {
		malformed.WithSource(source)
	}
	return err
}
