// Package artifact stores rendered bundles below the output directory. Each
// bundle is written next to a metadata sidecar that records what it was built
// from, so unchanged targets can be skipped on the next build.
package artifact

import (
	"fmt"
	"path"
	"strings"
)

// Kind is the kind of definition a bundle was built for.
type Kind string

const (
	KindAgent Kind = "agent"
	KindTeam  Kind = "team"
)

func (k Kind) dir() string {
	switch k {
	case KindAgent:
		return "agents"
	case KindTeam:
		return "teams"
	}
	return ""
}

const (
	bundleExt = ".txt"
	metaExt   = ".meta.yaml"
)

// Ref identifies a bundle in the store.
type Ref struct {
	Kind Kind
	ID   string
	// Pack is empty for core bundles.
	Pack string
}

// String returns "kind#id", prefixed with the pack for pack bundles.
func (r Ref) String() string {
	target := string(r.Kind) + "#" + r.ID
	if r.Pack != "" {
		return r.Pack + "/" + target
	}
	return target
}

// Validate ensures the reference maps to a path.
func (r Ref) Validate() error {
	if r.Kind.dir() == "" {
		return fmt.Errorf("artifact: unknown kind %q", r.Kind)
	}
	if r.ID == "" || strings.ContainsAny(r.ID, `/\`) || r.ID == "." || r.ID == ".." {
		return fmt.Errorf("artifact: invalid id %q", r.ID)
	}
	if strings.ContainsAny(r.Pack, `/\`) || r.Pack == "." || r.Pack == ".." {
		return fmt.Errorf("artifact: invalid pack %q", r.Pack)
	}
	return nil
}

// Path returns the bundle path relative to the output directory:
// agents/<id>.txt, teams/<id>.txt or packs/<pack>/{agents,teams}/<id>.txt.
func (r Ref) Path() string {
	if r.Pack != "" {
		return path.Join("packs", r.Pack, r.Kind.dir(), r.ID+bundleExt)
	}
	return path.Join(r.Kind.dir(), r.ID+bundleExt)
}

// MetaPath returns the sidecar path relative to the output directory.
func (r Ref) MetaPath() string {
	return strings.TrimSuffix(r.Path(), bundleExt) + metaExt
}

// State captures the readiness of a bundle on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	// StateStale bundles exist but were built from different inputs.
	StateStale   State = "stale"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      Ref
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}
