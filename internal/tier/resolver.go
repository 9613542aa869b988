package tier

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

type cacheKey struct {
	Type    resource.Type
	ID      string
	Context string
}

// Resolver locates resources across tiers for one root/pack context. The
// load cache lives as long as the resolver; create a new resolver for a
// different root or pack.
type Resolver struct {
	tree   Tree
	layout Layout
	pack   string
	tiers  []resource.Tier
	cache  sync.Map
}

// New returns a resolver for pack. An empty pack resolves against the shared
// and common tiers only.
func New(tree Tree, layout Layout, pack string) *Resolver {
	tiers := []resource.Tier{resource.TierShared, resource.TierCommon}
	if pack != "" {
		tiers = append([]resource.Tier{resource.TierPack}, tiers...)
	}
	return &Resolver{tree: tree, layout: layout, pack: pack, tiers: tiers}
}

// Pack returns the pack context, or "" for core builds.
func (r *Resolver) Pack() string {
	return r.pack
}

// Tiers returns the tiers consulted, highest precedence first.
func (r *Resolver) Tiers() []resource.Tier {
	return append([]resource.Tier(nil), r.tiers...)
}

// Tree exposes the document tree backing the resolver.
func (r *Resolver) Tree() Tree {
	return r.tree
}

// Layout returns the directory layout used by the resolver.
func (r *Resolver) Layout() Layout {
	return r.layout
}

// Resolve returns the highest-precedence content for ref.
func (r *Resolver) Resolve(ref resource.Reference) (resource.Resolved, error) {
	if ref.Type.Dir() == "" {
		return resource.Resolved{}, fmt.Errorf("tier: unknown resource type %q", ref.Type)
	}
	key := cacheKey{Type: ref.Type, ID: ref.ID, Context: r.pack}
	if ref.Ext != "" {
		key.ID += ref.Ext
	}
	if cached, ok := r.cache.Load(key); ok {
		res := cached.(resource.Resolved)
		res.Ref = ref
		return res, nil
	}
	var searched []string
	for _, t := range r.tiers {
		dir := path.Join(r.layout.Dir(t, r.pack), ref.Type.Dir())
		searched = append(searched, dir)
		for _, name := range ref.Candidates() {
			p := path.Join(dir, name)
			data, err := r.tree.ReadFile(p)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return resource.Resolved{}, err
			}
			res := resource.Resolved{Ref: ref, Tier: t, Path: p, Content: string(data)}
			r.cache.LoadOrStore(key, res)
			return res, nil
		}
	}
	return resource.Resolved{}, apperrors.NewNotFoundError(string(ref.Type), ref.ID).
		WithContext(r.pack).
		WithSearched(searched...)
}

// List returns the ids of kind available in any tier, sorted.
func (r *Resolver) List(kind resource.Type) ([]string, error) {
	seen := map[string]struct{}{}
	for _, t := range r.tiers {
		ids, err := r.ListTier(t, kind)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListTier returns the ids of kind present in a single tier, sorted.
func (r *Resolver) ListTier(t resource.Tier, kind resource.Type) ([]string, error) {
	base := r.layout.Dir(t, r.pack)
	if base == "" {
		return nil, nil
	}
	names, err := r.tree.ReadDir(path.Join(base, kind.Dir()))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var ids []string
	for _, name := range names {
		id, ok := resource.IDFromFile(kind, name)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Files returns every file of kind with extension ext across tiers. When two
// tiers hold the same file name the higher-precedence tier wins.
func (r *Resolver) Files(kind resource.Type, ext string) ([]resource.Resolved, error) {
	seen := map[string]struct{}{}
	var out []resource.Resolved
	for _, t := range r.tiers {
		dir := path.Join(r.layout.Dir(t, r.pack), kind.Dir())
		names, err := r.tree.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if path.Ext(name) != ext {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			p := path.Join(dir, name)
			data, err := r.tree.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("tier: read %s: %w", p, err)
			}
			id := name[:len(name)-len(ext)]
			out = append(out, resource.Resolved{
				Ref:     resource.Reference{Type: kind, ID: id, Ext: ext},
				Tier:    t,
				Path:    p,
				Content: string(data),
			})
		}
	}
	return out, nil
}
