package build

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/kingrea/agentpack/internal/artifact"
	apperrors "github.com/kingrea/agentpack/internal/errors"
)

// Target is one bundle to build.
type Target struct {
	Kind artifact.Kind
	ID   string
	// Pack is empty for core targets.
	Pack string
}

// Ref maps the target onto the artifact store.
func (t Target) Ref() artifact.Ref {
	return artifact.Ref{Kind: t.Kind, ID: t.ID, Pack: t.Pack}
}

// String returns "kind#id", prefixed with "pack/" for pack targets.
func (t Target) String() string {
	return t.Ref().String()
}

// Selector narrows the targets of a build. The zero Selector selects every
// core and pack agent and team.
type Selector struct {
	Agent string
	Team  string
	// Pack restricts the build to one pack's own definitions.
	Pack string
	// Only keeps targets whose name or id matches any of these globs.
	Only []string
}

type filter []glob.Glob

func compileFilter(patterns []string) (filter, error) {
	var f filter
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("build: invalid --only pattern %q: %w", p, err)
		}
		f = append(f, g)
	}
	return f, nil
}

func (f filter) match(t Target) bool {
	if len(f) == 0 {
		return true
	}
	for _, g := range f {
		if g.Match(t.String()) || g.Match(t.ID) {
			return true
		}
	}
	return false
}

// Targets lists what sel selects, core targets first, then packs in
// directory order. Within a context agents precede teams.
func (b *Builder) Targets(sel Selector) ([]Target, error) {
	only, err := compileFilter(sel.Only)
	if err != nil {
		return nil, err
	}
	var contexts []string
	switch {
	case sel.Pack != "":
		if b.opts.Packs == nil {
			return nil, apperrors.NewNotFoundError("pack", sel.Pack)
		}
		if _, err := b.opts.Packs.Get(sel.Pack); err != nil {
			return nil, err
		}
		contexts = []string{sel.Pack}
	case sel.Agent != "" || sel.Team != "":
		contexts = []string{""}
	default:
		contexts = []string{""}
		if b.opts.Packs != nil {
			packs, err := b.opts.Packs.List()
			if err != nil {
				return nil, err
			}
			for _, p := range packs {
				contexts = append(contexts, p.Dir)
			}
		}
	}

	var targets []Target
	for _, packDir := range contexts {
		found, err := b.contextTargets(packDir, sel)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			if only.match(t) {
				targets = append(targets, t)
			}
		}
	}
	return targets, nil
}

func (b *Builder) contextTargets(packDir string, sel Selector) ([]Target, error) {
	if sel.Agent != "" || sel.Team != "" {
		var out []Target
		if sel.Agent != "" {
			out = append(out, Target{Kind: artifact.KindAgent, ID: sel.Agent, Pack: packDir})
		}
		if sel.Team != "" {
			out = append(out, Target{Kind: artifact.KindTeam, ID: sel.Team, Pack: packDir})
		}
		return out, nil
	}
	sc, err := b.scope(packDir)
	if err != nil {
		return nil, err
	}
	agents, err := sc.catalog.OwnAgentIDs()
	if err != nil {
		return nil, err
	}
	teams, err := sc.catalog.OwnTeamIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(agents)+len(teams))
	for _, id := range agents {
		out = append(out, Target{Kind: artifact.KindAgent, ID: id, Pack: packDir})
	}
	for _, id := range teams {
		out = append(out, Target{Kind: artifact.KindTeam, ID: id, Pack: packDir})
	}
	return out, nil
}
