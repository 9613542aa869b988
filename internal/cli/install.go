package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/build"
	"github.com/kingrea/agentpack/internal/install"
	"github.com/kingrea/agentpack/internal/tui"
)

func newInstallCommand(a *app) *cobra.Command {
	var (
		sel         selectorFlags
		bundled     bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "install <dir>",
		Short: "Install agents, teams or a pack into a project",
		Long: `Install copies the selected agents or teams into <dir>. By default the
definition documents and every resolved resource are copied below
<dir>/<root label>; with --bundle one assembled bundle per target is written
to <dir>/web-bundles. An install-manifest.yaml records every file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Flags(), nil); err != nil {
				return err
			}
			ws, err := a.workspace(workspaceOptions{})
			if err != nil {
				return err
			}
			defer ws.Close()

			var targets []build.Target
			switch {
			case interactive:
				targets, err = pickTargets(cmd, ws, sel)
			case sel.agent == "" && sel.team == "" && sel.pack == "":
				return fmt.Errorf("select --agent, --team, --pack or --interactive")
			default:
				targets, err = ws.builder.Targets(sel.selector())
			}
			if err != nil {
				return err
			}

			mode := install.ModeSource
			if bundled {
				mode = install.ModeBundle
			}
			in, err := install.New(install.Options{
				Builder: ws.builder,
				Fs:      afero.NewOsFs(),
				Dir:     args[0],
				Mode:    mode,
				Version: Version,
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			manifest, err := in.Install(cmd.Context(), targets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d targets (%d files) into %s\n", len(targets), len(manifest.Files), args[0])
			return nil
		},
	}
	sel.register(cmd.Flags(), false)
	cmd.Flags().BoolVar(&bundled, "bundle", false, "install assembled bundles instead of source files")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "choose targets in a picker")
	return cmd
}

func pickTargets(cmd *cobra.Command, ws *workspace, sel selectorFlags) ([]build.Target, error) {
	candidates, err := ws.builder.Targets(build.Selector{Pack: sel.pack})
	if err != nil {
		return nil, err
	}
	options := make([]tui.Option, 0, len(candidates))
	for _, t := range candidates {
		opt := tui.Option{Target: t, Title: t.ID, Description: t.String()}
		cat, err := ws.builder.Catalog(t.Pack)
		if err != nil {
			return nil, err
		}
		switch t.Kind {
		case artifact.KindAgent:
			if agent, err := cat.Agent(t.ID); err == nil && agent.Title != "" {
				opt.Description = agent.Title
			}
		case artifact.KindTeam:
			if team, err := cat.Team(t.ID); err == nil && team.Description != "" {
				opt.Description = team.Description
			}
		}
		options = append(options, opt)
	}
	return tui.Pick("Select what to install", options,
		tea.WithAltScreen(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
}
