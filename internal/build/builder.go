// Package build runs the resolve, assemble, validate and write pipeline for
// many bundle targets at once.
package build

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/bundle"
	"github.com/kingrea/agentpack/internal/catalog"
	"github.com/kingrea/agentpack/internal/contracts"
	"github.com/kingrea/agentpack/internal/definition"
	"github.com/kingrea/agentpack/internal/deps"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/logbook"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/pack"
	"github.com/kingrea/agentpack/internal/resource"
	"github.com/kingrea/agentpack/internal/tier"
)

// Status is the outcome of one target.
type Status string

const (
	StatusBuilt Status = "built"
	// StatusUnchanged targets matched the stored bundle and were not rewritten.
	StatusUnchanged Status = "unchanged"
	// StatusWarned targets were written with advisory issues or skipped entries.
	StatusWarned Status = "warned"
	StatusFailed Status = "failed"
	// StatusSkipped targets never ran because the batch was aborted.
	StatusSkipped Status = "skipped"
)

// Options configure a Builder.
type Options struct {
	Tree   tier.Tree
	Layout tier.Layout
	// Packs may be nil when the tree has no packs.
	Packs *pack.Locator
	// Store receives bundles; nil makes every run a dry run.
	Store     *artifact.Store
	Assembler *bundle.Assembler

	Roles      deps.Roles
	Mode       deps.Mode
	Contracts  *contracts.Set
	Thresholds bundle.Thresholds

	RootLabel string
	// PackRootLabel returns the root label of packs whose config.yaml sets
	// none. Defaults to "." + pack dir.
	PackRootLabel func(pack string) string

	Workers int
	// Force rewrites bundles even when they are up to date.
	Force bool

	Logger     *logging.Logger
	Journal    *logbook.Logbook
	NewBuildID func() string
}

// Stats summarise a bundle.
type Stats struct {
	Agents    int
	Resources int
	ByType    map[resource.Type]int
	// Size is the rendered size in characters.
	Size int
}

// Result is the outcome of building one target.
type Result struct {
	Target  Target
	Status  Status
	Path    string
	BuildID string
	Stats   Stats
	Issues  []bundle.Issue
	Skipped []string
	Err     error
}

// Report collects the results of one Run in target order.
type Report struct {
	BuildID  string
	Results  []Result
	Started  time.Time
	Finished time.Time
}

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the failed results.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether no target failed or was skipped.
func (r *Report) OK() bool {
	return r.Count(StatusFailed) == 0 && r.Count(StatusSkipped) == 0
}

// Prepared is a target that has been resolved, assembled and validated.
type Prepared struct {
	Target     Target
	Definition definition.Definition
	Set        *deps.Set
	Bundle     *bundle.Bundle
	Validation bundle.Result
	RootLabel  string
	// Digest fingerprints the rendered sections for staleness checks.
	Digest string
}

type scope struct {
	tiers     *tier.Resolver
	catalog   *catalog.Catalog
	rootLabel string
}

// Builder is safe for concurrent use. Each pack context gets its own tier
// resolver and catalog, shared by every target in that context.
type Builder struct {
	opts Options

	mu     sync.Mutex
	scopes map[string]*scope
}

// New returns a builder for opts.
func New(opts Options) (*Builder, error) {
	if opts.Tree == nil {
		return nil, fmt.Errorf("build: a source tree is required")
	}
	if opts.Layout == (tier.Layout{}) {
		opts.Layout = tier.DefaultLayout()
	}
	if opts.Assembler == nil {
		opts.Assembler = bundle.NewAssembler(bundle.Options{NewBuildID: opts.NewBuildID})
	}
	if opts.RootLabel == "" {
		return nil, apperrors.NewConfigError("root label is required", nil).WithKey("output.root_label")
	}
	if opts.PackRootLabel == nil {
		opts.PackRootLabel = func(p string) string { return "." + p }
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.NewBuildID == nil {
		opts.NewBuildID = uuid.NewString
	}
	return &Builder{opts: opts, scopes: map[string]*scope{}}, nil
}

// Reset drops every cached resolver, catalog and pack listing so the next
// run sees the current tree.
func (b *Builder) Reset() {
	b.mu.Lock()
	b.scopes = map[string]*scope{}
	b.mu.Unlock()
	if b.opts.Packs != nil {
		b.opts.Packs.Invalidate()
	}
}

func (b *Builder) scope(packDir string) (*scope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sc, ok := b.scopes[packDir]; ok {
		return sc, nil
	}
	label := b.opts.RootLabel
	if packDir != "" {
		if b.opts.Packs == nil {
			return nil, apperrors.NewNotFoundError("pack", packDir)
		}
		p, err := b.opts.Packs.Get(packDir)
		if err != nil {
			return nil, err
		}
		label = p.RootLabel(b.opts.PackRootLabel(packDir))
	}
	tiers := tier.New(b.opts.Tree, b.opts.Layout, packDir)
	sc := &scope{tiers: tiers, catalog: catalog.New(tiers), rootLabel: label}
	b.scopes[packDir] = sc
	return sc, nil
}

// Catalog returns the catalog for a pack context ("" for core).
func (b *Builder) Catalog(packDir string) (*catalog.Catalog, error) {
	sc, err := b.scope(packDir)
	if err != nil {
		return nil, err
	}
	return sc.catalog, nil
}

// RootLabel returns the root label used for a pack context.
func (b *Builder) RootLabel(packDir string) (string, error) {
	sc, err := b.scope(packDir)
	if err != nil {
		return "", err
	}
	return sc.rootLabel, nil
}

func (b *Builder) resolver(sc *scope) *deps.Resolver {
	return deps.NewResolver(sc.catalog, sc.tiers, deps.Options{
		Roles:     b.opts.Roles,
		Mode:      b.opts.Mode,
		Contracts: b.opts.Contracts,
		Logger:    b.opts.Logger.WithPack(sc.tiers.Pack()),
	})
}

// Resolve loads the target's definition and builds its dependency set.
func (b *Builder) Resolve(t Target) (definition.Definition, *deps.Set, error) {
	sc, err := b.scope(t.Pack)
	if err != nil {
		return nil, nil, err
	}
	res := b.resolver(sc)
	switch t.Kind {
	case artifact.KindAgent:
		agent, err := sc.catalog.Agent(t.ID)
		if err != nil {
			return nil, nil, err
		}
		set, err := res.ResolveAgent(agent)
		return agent, set, err
	case artifact.KindTeam:
		team, err := sc.catalog.Team(t.ID)
		if err != nil {
			return nil, nil, err
		}
		set, err := res.ResolveTeam(team)
		return team, set, err
	}
	return nil, nil, fmt.Errorf("build: unknown target kind %q", t.Kind)
}

// Prepare resolves, assembles and validates t without writing anything.
func (b *Builder) Prepare(t Target) (*Prepared, error) {
	def, set, err := b.Resolve(t)
	if err != nil {
		return nil, err
	}
	label, err := b.RootLabel(t.Pack)
	if err != nil {
		return nil, err
	}
	bndl, err := b.opts.Assembler.Assemble(set, bundle.Target{Definition: def, Pack: t.Pack, RootLabel: label})
	if err != nil {
		return nil, err
	}
	th := b.opts.Thresholds
	if team, ok := def.(*definition.Team); ok && team.MaxBundleSize > 0 {
		th.MaxBundleSize = team.MaxBundleSize
	}
	validation := bundle.Validate(bndl, th)
	validation.Target = t.String()
	return &Prepared{
		Target:     t,
		Definition: def,
		Set:        set,
		Bundle:     bndl,
		Validation: validation,
		RootLabel:  label,
		Digest:     digest(bndl),
	}, nil
}

func digest(b *bundle.Bundle) string {
	parts := make([]string, 0, 2*len(b.Sections)+1)
	parts = append(parts, b.Metadata.RootLabel)
	for _, s := range b.Sections {
		parts = append(parts, s.Identifier, s.Content)
	}
	return artifact.Digest(parts...)
}

// Run builds targets with up to Workers in parallel. Per-target failures are
// reported in the Report; a fatal error, such as a capability violation,
// stops the batch and is returned alongside the partial report.
func (b *Builder) Run(ctx context.Context, targets []Target) (*Report, error) {
	report := &Report{
		BuildID: b.opts.NewBuildID(),
		Results: make([]Result, len(targets)),
		Started: time.Now(),
	}
	log := b.opts.Logger.With("build", report.BuildID)
	log.Info("build started", "targets", len(targets), "workers", b.opts.Workers, "mode", b.opts.Mode.String())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Results[i] = Result{Target: t, Status: StatusSkipped, Err: err}
				b.opts.Journal.Record(report.BuildID, t.String(), string(StatusSkipped), err.Error())
				return nil
			}
			res := b.build(t, log.WithTarget(t.String()))
			report.Results[i] = res
			b.opts.Journal.Record(report.BuildID, t.String(), string(res.Status), detail(res))
			if apperrors.IsFatal(res.Err) {
				return fmt.Errorf("build: %s: %w", t, res.Err)
			}
			return nil
		})
	}
	err := g.Wait()
	for i := range report.Results {
		if report.Results[i].Status == "" {
			report.Results[i] = Result{Target: targets[i], Status: StatusSkipped, Err: context.Canceled}
		}
	}
	report.Finished = time.Now()
	log.Info("build finished",
		"built", report.Count(StatusBuilt),
		"unchanged", report.Count(StatusUnchanged),
		"warned", report.Count(StatusWarned),
		"failed", report.Count(StatusFailed),
		"duration", report.Finished.Sub(report.Started).String(),
	)
	return report, err
}

func (b *Builder) build(t Target, log *logging.Logger) Result {
	result := Result{Target: t}
	prepared, err := b.Prepare(t)
	if err != nil {
		log.Error("build failed", "error", err.Error())
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	bndl := prepared.Bundle
	result.BuildID = bndl.Metadata.BuildID
	result.Issues = prepared.Validation.Issues
	result.Skipped = bndl.Metadata.Skipped
	result.Stats = Stats{
		Agents:    len(bndl.Metadata.Agents),
		Resources: bndl.Metadata.Resources,
		ByType:    bndl.Metadata.ResourcesByType,
		Size:      prepared.Validation.TotalSize,
	}
	for _, issue := range prepared.Validation.Issues {
		log.Warn("validation issue", "kind", string(issue.Kind), "severity", string(issue.Severity), "message", issue.Message)
	}
	if !prepared.Validation.Valid {
		result.Status = StatusFailed
		result.Err = prepared.Validation.Err()
		log.Error("bundle rejected", "error", result.Err.Error())
		return result
	}

	result.Status = StatusBuilt
	if len(result.Issues) > 0 || len(result.Skipped) > 0 {
		result.Status = StatusWarned
	}
	if b.opts.Store == nil {
		return result
	}
	ref := t.Ref()
	result.Path = b.opts.Store.Path(ref)
	if !b.opts.Force {
		check, err := b.opts.Store.Check(ref, prepared.Digest)
		if err == nil && check.State == artifact.StateReady {
			log.Debug("bundle up to date", "path", check.Path)
			if result.Status != StatusWarned {
				result.Status = StatusUnchanged
			}
			return result
		}
	}
	path, err := b.opts.Store.Write(ref, []byte(bndl.Render()), artifact.Metadata{
		BuildID:     bndl.Metadata.BuildID,
		Pack:        t.Pack,
		RootLabel:   prepared.RootLabel,
		InputDigest: prepared.Digest,
		Resources:   countsByName(bndl.Metadata.ResourcesByType),
		Skipped:     bndl.Metadata.Skipped,
	})
	if err != nil {
		log.Error("write failed", "error", err.Error())
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Path = path
	log.Info("bundle written", "path", path, "size", result.Stats.Size, "resources", result.Stats.Resources)
	return result
}

// Audit loads every agent visible in every context and checks capability
// ownership across all of them. Malformed agent documents are collected in
// the report and do not stop the audit.
func (b *Builder) Audit() (contracts.Report, error) {
	contexts := []string{""}
	if b.opts.Packs != nil {
		packs, err := b.opts.Packs.List()
		if err != nil {
			return contracts.Report{}, err
		}
		for _, p := range packs {
			contexts = append(contexts, p.Dir)
		}
	}
	seen := map[string]struct{}{}
	var (
		agents    []*definition.Agent
		malformed []error
	)
	for _, packDir := range contexts {
		cat, err := b.Catalog(packDir)
		if err != nil {
			return contracts.Report{}, err
		}
		ids, err := cat.OwnAgentIDs()
		if err != nil {
			return contracts.Report{}, err
		}
		for _, id := range ids {
			key := packDir + "/" + id
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			agent, err := cat.Agent(id)
			if apperrors.Is(err, apperrors.ErrMalformedDefinition) {
				malformed = append(malformed, fmt.Errorf("agent %s: %w", id, err))
				continue
			}
			if err != nil {
				return contracts.Report{}, err
			}
			agents = append(agents, agent)
		}
	}
	report := b.opts.Contracts.Audit(agents)
	report.Malformed = malformed
	return report, nil
}

func countsByName(counts map[resource.Type]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[string(t)] = n
	}
	return out
}

func detail(res Result) string {
	var parts []string
	if res.Err != nil {
		parts = append(parts, res.Err.Error())
	}
	for _, issue := range res.Issues {
		parts = append(parts, issue.Message)
	}
	if len(res.Skipped) > 0 {
		skipped := append([]string(nil), res.Skipped...)
		sort.Strings(skipped)
		parts = append(parts, "skipped "+strings.Join(skipped, ", "))
	}
	return strings.Join(parts, "; ")
}
