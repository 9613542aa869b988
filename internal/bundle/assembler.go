package bundle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/agentpack/internal/definition"
	"github.com/kingrea/agentpack/internal/deps"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

// Target describes what a bundle is assembled for.
type Target struct {
	Definition definition.Definition
	// Pack is empty for core builds.
	Pack      string
	RootLabel string
}

// Kind returns the target kind derived from the definition.
func (t Target) Kind() TargetKind {
	if t.Definition != nil && t.Definition.Kind() == resource.KindTeam {
		return TargetTeam
	}
	return TargetAgent
}

// Variant picks the preamble for the target.
func (t Target) Variant() Variant {
	switch {
	case t.Pack != "":
		return VariantPack
	case t.Kind() == TargetTeam:
		return VariantTeam
	default:
		return VariantAgent
	}
}

// Options configure an Assembler. Zero values fall back to defaults.
type Options struct {
	Preambles *PreambleSet
	Identity  IdentityRules
	// NewBuildID stamps bundle metadata; uuid.NewString by default.
	NewBuildID func() string
}

// Assembler turns dependency sets into bundles. It holds no per-build state
// and is safe for concurrent use.
type Assembler struct {
	preambles *PreambleSet
	identity  IdentityRules
	newID     func() string
}

// NewAssembler returns an assembler for opts.
func NewAssembler(opts Options) *Assembler {
	a := &Assembler{preambles: opts.Preambles, identity: opts.Identity, newID: opts.NewBuildID}
	if a.preambles == nil {
		a.preambles = DefaultPreambles()
	}
	if len(a.identity.ReservedKeys) == 0 && a.identity.InstructionKey == "" {
		a.identity = DefaultIdentityRules()
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// Assemble renders set for target: preamble, identity, member agents (teams
// only), then resources in set order.
func (a *Assembler) Assemble(set *deps.Set, target Target) (*Bundle, error) {
	if target.Definition == nil {
		return nil, fmt.Errorf("bundle: target has no definition")
	}
	if strings.Contains(target.RootLabel, RootPlaceholder) {
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("root label %q must not contain %s", target.RootLabel, RootPlaceholder), nil,
		).WithKey("output.root_label")
	}
	kind := target.Kind()
	identifier := string(kind) + "#" + target.Definition.DefinitionID()

	preamble, err := a.preambles.Render(target.Variant(), target.RootLabel)
	if err != nil {
		return nil, err
	}
	identity, err := a.identityContent(target.Definition.Block())
	if err != nil {
		return nil, fmt.Errorf("bundle: %s: %w", identifier, err)
	}
	sections := []Section{
		{Kind: KindPreamble, Content: preamble},
		{Kind: KindIdentity, Identifier: identifier, Content: identity},
	}
	if kind == TargetTeam {
		for _, agent := range set.Agents {
			content, err := a.identityContent(agent.ConfigBlock)
			if err != nil {
				return nil, fmt.Errorf("bundle: %s: agent %s: %w", identifier, agent.ID, err)
			}
			sections = append(sections, Section{Kind: KindAgent, Identifier: "agent#" + agent.ID, Content: content})
		}
	}
	for _, res := range set.Resources {
		sections = append(sections, Section{Kind: KindResource, Identifier: res.Ref.String(), Content: res.Content})
	}
	for i := range sections {
		sections[i].Content = SubstituteRoot(sections[i].Content, target.RootLabel)
	}

	meta := Metadata{
		BuildID:         a.newID(),
		Kind:            kind,
		ID:              target.Definition.DefinitionID(),
		Pack:            target.Pack,
		RootLabel:       target.RootLabel,
		Agents:          set.AgentIDs(),
		Resources:       len(set.Resources),
		ResourcesByType: set.CountByType(),
	}
	for _, skipped := range set.Skipped {
		name := skipped.Member
		if skipped.Ref.ID != "" {
			name = skipped.Ref.String()
		}
		meta.Skipped = append(meta.Skipped, name)
	}
	sort.Strings(meta.Skipped)
	return &Bundle{Metadata: meta, Sections: sections}, nil
}

func (a *Assembler) identityContent(block string) (string, error) {
	stripped, err := StripIdentity(block, a.identity)
	if err != nil {
		return "", err
	}
	return "```yaml\n" + stripped + "\n```", nil
}
