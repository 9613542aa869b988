// Package cli wires the agentpack commands onto cobra.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/build"
	"github.com/kingrea/agentpack/internal/bundle"
	"github.com/kingrea/agentpack/internal/config"
	"github.com/kingrea/agentpack/internal/contracts"
	"github.com/kingrea/agentpack/internal/deps"
	"github.com/kingrea/agentpack/internal/logbook"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/pack"
	"github.com/kingrea/agentpack/internal/tier"
)

// Version is stamped at link time.
var Version = "dev"

// app carries the global flags and everything loaded from them.
type app struct {
	root       string
	configFile string
	logLevel   string

	cfg     *config.Config
	log     *logging.Logger
	journal *logbook.Logbook
}

// NewRootCommand returns the agentpack command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "agentpack",
		Short: "Resolve and bundle AI agent personas",
		Long: `agentpack resolves the dependencies of agent and team definitions across
the pack, core and common tiers, assembles them into single-file bundles
and installs them into projects.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.root, "root", "r", "", "source tree root (default is the current directory)")
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default is <root>/"+config.FileName+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newBuildCommand(a),
		newValidateCommand(a),
		newListCommand(a),
		newDepsCommand(a),
		newInstallCommand(a),
		newInitCommand(a),
	)
	return root
}

// Execute runs the root command with an interrupt-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) sourceRoot() (string, error) {
	root := a.root
	if root == "" {
		if a.configFile != "" {
			root = filepath.Dir(a.configFile)
		} else {
			root = "."
		}
	}
	return filepath.Abs(root)
}

// load reads configuration in flag, environment, file, default order. keys
// maps configuration keys onto command flags.
func (a *app) load(flags *pflag.FlagSet, keys map[string]string) error {
	root, err := a.sourceRoot()
	if err != nil {
		return err
	}
	v, err := config.NewViper(root)
	if err != nil {
		return err
	}
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", a.configFile, err)
		}
		v.Set("source.root", root)
	}
	if a.logLevel != "" {
		v.Set("logging.level", a.logLevel)
	}
	if err := bindFlags(v, flags, keys); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() error {
	if a.log == nil {
		return nil
	}
	return a.log.Close()
}

// workspace is a builder over the configured source tree.
type workspace struct {
	tree    *tier.FSTree
	packs   *pack.Locator
	builder *build.Builder
}

type workspaceOptions struct {
	// write enables the artifact store and the build journal.
	write bool
	force bool
	// mode overrides build.strict when set.
	mode *deps.Mode
}

func (a *app) workspace(opts workspaceOptions) (*workspace, error) {
	cfg := a.cfg
	tree := tier.OSTree(cfg.Source.Root)
	layout := tier.Layout{CoreDir: cfg.Source.CoreDir, CommonDir: cfg.Source.CommonDir, PacksDir: cfg.Source.PacksDir}
	locator, err := pack.NewLocator(tree, layout, 0)
	if err != nil {
		return nil, err
	}

	caps := make([]contracts.Capability, 0, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		capability, err := contracts.ParseCapability(c.Resource, c.Agent)
		if err != nil {
			return nil, err
		}
		caps = append(caps, capability)
	}
	set, err := contracts.NewSet(caps...)
	if err != nil {
		return nil, err
	}
	preambles, err := bundle.LoadPreambles(tree, cfg.Source.PreamblesDir)
	if err != nil {
		return nil, err
	}
	thresholds, err := thresholdsFrom(cfg.Validation)
	if err != nil {
		return nil, err
	}

	mode := deps.BestEffort
	if cfg.Build.Strict {
		mode = deps.Strict
	}
	if opts.mode != nil {
		mode = *opts.mode
	}
	var store *artifact.Store
	if opts.write {
		store = artifact.NewStore(afero.NewOsFs(), cfg.OutputDir())
		if a.journal == nil {
			dir := cfg.Logging.Dir
			if dir == "" {
				dir = cfg.OutputDir()
			}
			journal, err := logbook.New(afero.NewOsFs(), filepath.Join(dir, logbook.FileName))
			if err != nil {
				return nil, err
			}
			a.journal = journal
		}
	}

	b, err := build.New(build.Options{
		Tree:   tree,
		Layout: layout,
		Packs:  locator,
		Store:  store,
		Assembler: bundle.NewAssembler(bundle.Options{
			Preambles: preambles,
			Identity: bundle.IdentityRules{
				ReservedKeys:       cfg.Identity.ReservedKeys,
				InstructionKey:     cfg.Identity.InstructionKey,
				InstructionMarkers: cfg.Identity.InstructionMarkers,
			},
		}),
		Roles: deps.Roles{
			Coordinator:    cfg.Roles.Coordinator,
			SingleOperator: cfg.Roles.SingleOperator,
			Wildcard:       cfg.Roles.Wildcard,
		},
		Mode:          mode,
		Contracts:     set,
		Thresholds:    thresholds,
		RootLabel:     cfg.Output.RootLabel,
		PackRootLabel: cfg.PackRootLabel,
		Workers:       cfg.Build.Workers,
		Force:         opts.force,
		Logger:        a.log,
		Journal:       a.journal,
	})
	if err != nil {
		return nil, err
	}
	return &workspace{tree: tree, packs: locator, builder: b}, nil
}

func (w *workspace) Close() {
	w.packs.Close()
}

func thresholdsFrom(v config.ValidationConfig) (bundle.Thresholds, error) {
	bundleSeverity, err := bundle.ParseSeverity(v.BundleSeverity)
	if err != nil {
		return bundle.Thresholds{}, err
	}
	sectionSeverity, err := bundle.ParseSeverity(v.SectionSeverity)
	if err != nil {
		return bundle.Thresholds{}, err
	}
	return bundle.Thresholds{
		MaxBundleSize:   v.MaxBundleSize,
		MaxSectionSize:  v.MaxSectionSize,
		BundleSeverity:  bundleSeverity,
		SectionSeverity: sectionSeverity,
	}, nil
}

// selectorFlags are shared by build, validate and install.
type selectorFlags struct {
	agent string
	team  string
	pack  string
	only  []string
}

func (s *selectorFlags) register(flags *pflag.FlagSet, withOnly bool) {
	flags.StringVar(&s.agent, "agent", "", "only this agent")
	flags.StringVar(&s.team, "team", "", "only this team")
	flags.StringVar(&s.pack, "pack", "", "only this expansion pack")
	if withOnly {
		flags.StringSliceVar(&s.only, "only", nil, "glob filter on target names such as 'team#*' (repeatable)")
	}
}

func (s *selectorFlags) selector() build.Selector {
	return build.Selector{Agent: s.agent, Team: s.team, Pack: s.pack, Only: s.only}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
