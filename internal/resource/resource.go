package resource

import (
	"fmt"
	"path"
	"strings"
)

// Type identifies a family of resources. Each type lives in its own
// directory inside a tier.
type Type string

const (
	TypeTask      Type = "task"
	TypeTemplate  Type = "template"
	TypeChecklist Type = "checklist"
	TypeData      Type = "data"
	TypeUtility   Type = "utility"
	TypeWorkflow  Type = "workflow"
	TypePersona   Type = "persona"
)

// Definition documents are located through tiers like resources, but they
// can never appear in a dependency list.
const (
	KindAgent Type = "agent"
	KindTeam  Type = "team"
)

// ExpansionOrder is the order in which an agent's declared dependencies are
// emitted.
var ExpansionOrder = []Type{TypeTask, TypeTemplate, TypeChecklist, TypeData, TypeUtility}

var typeDirs = map[Type]string{
	TypeTask:      "tasks",
	TypeTemplate:  "templates",
	TypeChecklist: "checklists",
	TypeData:      "data",
	TypeUtility:   "utils",
	TypeWorkflow:  "workflows",
	TypePersona:   "personas",
	KindAgent:     "agents",
	KindTeam:      "agent-teams",
}

var typeExtensions = map[Type][]string{
	TypeTask:      {".md"},
	TypeTemplate:  {".yaml", ".yml", ".md"},
	TypeChecklist: {".md"},
	TypeData:      {".md"},
	TypeUtility:   {".md"},
	TypeWorkflow:  {".yaml", ".yml"},
	TypePersona:   {".md"},
	KindAgent:     {".md"},
	KindTeam:      {".yaml", ".yml"},
}

var typeAliases = map[string]Type{
	"task":       TypeTask,
	"tasks":      TypeTask,
	"template":   TypeTemplate,
	"templates":  TypeTemplate,
	"checklist":  TypeChecklist,
	"checklists": TypeChecklist,
	"data":       TypeData,
	"utility":    TypeUtility,
	"utilities":  TypeUtility,
	"util":       TypeUtility,
	"utils":      TypeUtility,
	"workflow":   TypeWorkflow,
	"workflows":  TypeWorkflow,
	"persona":    TypePersona,
	"personas":   TypePersona,
}

// ParseType accepts the singular name, plural name or directory name of a
// dependency type.
func ParseType(raw string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("resource: unknown type %q", raw)
}

// Valid reports whether t may appear in a dependency list.
func (t Type) Valid() bool {
	_, ok := typeAliases[string(t)]
	return ok
}

// Dir returns the directory holding documents of this type inside a tier.
func (t Type) Dir() string {
	return typeDirs[t]
}

// Extensions returns the canonical file extensions for t, most preferred first.
func (t Type) Extensions() []string {
	return typeExtensions[t]
}

// Key is the identity of a resource: two references with equal keys are the
// same logical resource.
type Key struct {
	Type Type
	ID   string
}

func (k Key) String() string {
	return string(k.Type) + "#" + k.ID
}

// Reference names a resource without tier information. Ext holds an explicit
// extension given by the author and is only used as a lookup hint.
type Reference struct {
	Type Type
	ID   string
	Ext  string
}

// NewReference builds a reference from an id as it appears in a definition.
// A recognized file extension is split off into Ext.
func NewReference(t Type, raw string) Reference {
	id := strings.TrimSpace(raw)
	ext := path.Ext(id)
	if isKnownExtension(ext) {
		return Reference{Type: t, ID: strings.TrimSuffix(id, ext), Ext: ext}
	}
	return Reference{Type: t, ID: id}
}

// ParseReference parses the "type#id" form used in section identifiers and
// configuration.
func ParseReference(raw string) (Reference, error) {
	typ, id, ok := strings.Cut(strings.TrimSpace(raw), "#")
	if !ok || strings.TrimSpace(id) == "" {
		return Reference{}, fmt.Errorf("resource: reference %q must have the form type#id", raw)
	}
	t, err := ParseType(typ)
	if err != nil {
		return Reference{}, err
	}
	return NewReference(t, id), nil
}

// Key returns the identity of the reference.
func (r Reference) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// String renders the reference as "type#id".
func (r Reference) String() string {
	return r.Key().String()
}

// Candidates lists the file names tried when resolving r, in order.
func (r Reference) Candidates() []string {
	if r.Ext != "" {
		return []string{r.ID + r.Ext}
	}
	exts := r.Type.Extensions()
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, r.ID+ext)
	}
	return names
}

// IDFromFile strips a recognized extension from a file name. ok is false for
// files that do not carry one of the extensions used by kind.
func IDFromFile(kind Type, name string) (string, bool) {
	ext := path.Ext(name)
	for _, candidate := range kind.Extensions() {
		if ext == candidate {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return "", false
}

func isKnownExtension(ext string) bool {
	switch ext {
	case ".md", ".yaml", ".yml":
		return true
	}
	return false
}

// Tier names a source of content. Tiers are consulted in the order pack,
// shared, common.
type Tier string

const (
	TierPack   Tier = "pack"
	TierShared Tier = "shared"
	TierCommon Tier = "common"
)

// Valid returns true if the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierPack, TierShared, TierCommon:
		return true
	}
	return false
}

// Resolved is the content found for a reference together with the tier that
// supplied it. Path is slash separated and relative to the source root.
type Resolved struct {
	Ref     Reference
	Tier    Tier
	Path    string
	Content string
}

// FileName returns the base name of the file that satisfied the lookup.
func (r Resolved) FileName() string {
	return path.Base(r.Path)
}
