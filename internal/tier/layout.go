package tier

import (
	"path"

	"github.com/kingrea/agentpack/internal/resource"
)

// Layout maps tiers onto directories of the source tree.
type Layout struct {
	CoreDir   string
	CommonDir string
	PacksDir  string
}

// DefaultLayout matches the directory names written by `agentpack init`.
func DefaultLayout() Layout {
	return Layout{CoreDir: "core", CommonDir: "common", PacksDir: "packs"}
}

// Dir returns the directory for a tier. pack is only consulted for TierPack.
func (l Layout) Dir(t resource.Tier, pack string) string {
	switch t {
	case resource.TierPack:
		if pack == "" {
			return ""
		}
		return path.Join(l.PacksDir, pack)
	case resource.TierShared:
		return l.CoreDir
	case resource.TierCommon:
		return l.CommonDir
	}
	return ""
}

// PackDir returns the root directory of a named pack.
func (l Layout) PackDir(pack string) string {
	return path.Join(l.PacksDir, pack)
}
