// Package bundle renders dependency sets into delimiter-sectioned text
// artifacts and validates them against size thresholds.
package bundle

import (
	"strings"

	"github.com/kingrea/agentpack/internal/resource"
)

// RootPlaceholder is replaced by the bundle's root label in every section.
const RootPlaceholder = "{root}"

const delimiterFill = "===================="

// StartDelimiter returns the line opening the section identified by id.
func StartDelimiter(id string) string {
	return delimiterFill + " START: " + id + " " + delimiterFill
}

// EndDelimiter returns the line closing the section identified by id.
func EndDelimiter(id string) string {
	return delimiterFill + " END: " + id + " " + delimiterFill
}

// SectionKind distinguishes the parts of a bundle.
type SectionKind string

const (
	KindPreamble SectionKind = "preamble"
	KindIdentity SectionKind = "identity"
	// KindAgent sections carry a team member's configuration.
	KindAgent    SectionKind = "agent"
	KindResource SectionKind = "resource"
)

// Section is one part of a bundle. Identifier is "type#id"; the preamble has
// no identifier.
type Section struct {
	Kind       SectionKind
	Identifier string
	Content    string
}

// TargetKind is the kind of definition a bundle is built for.
type TargetKind string

const (
	TargetAgent TargetKind = "agent"
	TargetTeam  TargetKind = "team"
)

// Metadata describes a bundle. It is not part of the rendered text, so two
// builds of the same input render identically.
type Metadata struct {
	BuildID         string
	Kind            TargetKind
	ID              string
	Pack            string
	RootLabel       string
	Agents          []string
	Resources       int
	ResourcesByType map[resource.Type]int
	Skipped         []string
}

// Target returns "kind#id", the name used in logs and summaries.
func (m Metadata) Target() string {
	return string(m.Kind) + "#" + m.ID
}

// Bundle is an ordered list of sections ready to be written.
type Bundle struct {
	Metadata Metadata
	Sections []Section
}

// Identity returns the identity section.
func (b *Bundle) Identity() (Section, bool) {
	for _, s := range b.Sections {
		if s.Kind == KindIdentity {
			return s, true
		}
	}
	return Section{}, false
}

// Section returns the section with the given identifier.
func (b *Bundle) Section(id string) (Section, bool) {
	for _, s := range b.Sections {
		if s.Identifier == id && s.Kind != KindPreamble {
			return s, true
		}
	}
	return Section{}, false
}

// Render produces the artifact text. The preamble is written as-is; every
// other section is wrapped in START/END delimiters.
func (b *Bundle) Render() string {
	var out strings.Builder
	for i, s := range b.Sections {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(renderSection(s))
	}
	return out.String()
}

func renderSection(s Section) string {
	content := strings.TrimRight(s.Content, "\n")
	if s.Kind == KindPreamble {
		return content + "\n"
	}
	return StartDelimiter(s.Identifier) + "\n" + content + "\n" + EndDelimiter(s.Identifier) + "\n"
}

// SubstituteRoot replaces every RootPlaceholder in content with label. The
// placeholder is consumed, so a second call is a no-op as long as label does
// not itself contain the placeholder.
func SubstituteRoot(content, label string) string {
	return strings.ReplaceAll(content, RootPlaceholder, label)
}
