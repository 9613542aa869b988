package pack

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/tier"
)

// DefaultTTL bounds how long a pack listing is reused.
const DefaultTTL = 30 * time.Second

const listKey = "packs"

// Locator enumerates the packs of a source tree. Listings are cached for
// TTL so repeated CLI and watch-mode lookups do not rescan the tree.
type Locator struct {
	tree   tier.Tree
	layout tier.Layout
	ttl    time.Duration
	cache  *ristretto.Cache[string, []*Pack]
}

// NewLocator creates a locator. A ttl of zero selects DefaultTTL.
func NewLocator(tree tier.Tree, layout tier.Layout, ttl time.Duration) (*Locator, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []*Pack]{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("pack: create cache: %w", err)
	}
	return &Locator{tree: tree, layout: layout, ttl: ttl, cache: cache}, nil
}

// List returns every pack sorted by directory name.
func (l *Locator) List() ([]*Pack, error) {
	if packs, ok := l.cache.Get(listKey); ok {
		return packs, nil
	}
	dirs, err := l.tree.SubDirs(l.layout.PacksDir)
	if err != nil {
		return nil, fmt.Errorf("pack: list %s: %w", l.layout.PacksDir, err)
	}
	packs := make([]*Pack, 0, len(dirs))
	for _, dir := range dirs {
		p, err := Load(l.tree, l.layout, dir)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	l.cache.SetWithTTL(listKey, packs, 1, l.ttl)
	l.cache.Wait()
	return packs, nil
}

// Get returns the pack stored in directory dir.
func (l *Locator) Get(dir string) (*Pack, error) {
	packs, err := l.List()
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		if p.Dir == dir {
			return p, nil
		}
	}
	return nil, apperrors.NewNotFoundError("pack", dir).WithSearched(l.layout.PacksDir)
}

// Invalidate drops the cached listing.
func (l *Locator) Invalidate() {
	l.cache.Clear()
}

// Close releases the cache.
func (l *Locator) Close() {
	l.cache.Close()
}
