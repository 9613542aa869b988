package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"text/template"

	"github.com/kingrea/agentpack/internal/tier"
)

// Variant selects the preamble written at the top of a bundle.
type Variant string

const (
	VariantAgent Variant = "agent"
	VariantTeam  Variant = "team"
	VariantPack  Variant = "pack"
)

// Variants lists every preamble variant.
func Variants() []Variant {
	return []Variant{VariantAgent, VariantTeam, VariantPack}
}

// PreambleData is the only input a preamble template receives.
type PreambleData struct {
	RootLabel string
	Variant   Variant
}

const navigationText = `Resources are wrapped in delimiter lines naming their type and id:

- ` + "`==================== START: task#create-doc ====================`" + `
- ` + "`==================== END: task#create-doc ====================`" + `

When your configuration points at a file such as ` + "`{{.RootLabel}}/tasks/create-doc.md`" + `, read the section whose delimiter names ` + "`task#create-doc`" + `. A path with a fragment, for example ` + "`{{.RootLabel}}/tasks/create-doc.md#inputs`" + `, refers to that heading inside the section.

You have no filesystem access. Everything you need is in this bundle; do not ask the user to load files that are already here.`

var defaultPreambles = map[Variant]string{
	VariantAgent: `# Agent Bundle

You are a specialized AI agent. This bundle holds your configuration and every resource it refers to.

1. Follow the activation instructions in your configuration exactly. They define your persona and workflow.
2. ` + navigationText + `
`,
	VariantTeam: `# Team Bundle

This bundle holds a team of AI agents. You start as the coordinator, whose configuration follows the team definition. The coordinator can transform into any member agent listed in the bundle.

1. Follow the coordinator's activation instructions exactly.
2. ` + navigationText + `
`,
	VariantPack: `# Expansion Pack Bundle

This bundle comes from the {{.RootLabel}} expansion pack. Its resources override shared ones with the same name, so always prefer the sections in this bundle.

1. Follow the activation instructions in the first configuration section exactly.
2. ` + navigationText + `
`,
}

// PreambleSet renders preambles by variant.
type PreambleSet struct {
	templates map[Variant]*template.Template
}

// DefaultPreambles returns the built-in preambles.
func DefaultPreambles() *PreambleSet {
	set := &PreambleSet{templates: map[Variant]*template.Template{}}
	for variant, text := range defaultPreambles {
		set.templates[variant] = template.Must(template.New(string(variant)).Parse(text))
	}
	return set
}

// LoadPreambles starts from the defaults and replaces any variant that has a
// <dir>/<variant>.md file in tree.
func LoadPreambles(tree tier.Tree, dir string) (*PreambleSet, error) {
	set := DefaultPreambles()
	for _, variant := range Variants() {
		p := path.Join(dir, string(variant)+".md")
		data, err := tree.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		tmpl, err := template.New(string(variant)).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("bundle: parse preamble %s: %w", p, err)
		}
		set.templates[variant] = tmpl
	}
	return set, nil
}

// Render executes the template for variant.
func (s *PreambleSet) Render(variant Variant, rootLabel string) (string, error) {
	tmpl, ok := s.templates[variant]
	if !ok {
		return "", fmt.Errorf("bundle: no preamble for variant %q", variant)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PreambleData{RootLabel: rootLabel, Variant: variant}); err != nil {
		return "", fmt.Errorf("bundle: render %s preamble: %w", variant, err)
	}
	return buf.String(), nil
}
