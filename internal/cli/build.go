package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/agentpack/internal/build"
	"github.com/kingrea/agentpack/internal/tui"
)

func newBuildCommand(a *app) *cobra.Command {
	var (
		sel    selectorFlags
		watch  bool
		force  bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build agent and team bundles",
		Long: `Build resolves every selected agent and team, assembles its bundle and
writes it below the output directory. Bundles whose inputs have not changed
are left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Flags(), map[string]string{
				"output.dir":    "out",
				"build.workers": "workers",
				"build.strict":  "strict",
			}); err != nil {
				return err
			}
			ws, err := a.workspace(workspaceOptions{write: !dryRun, force: force})
			if err != nil {
				return err
			}
			defer ws.Close()

			targets, err := ws.builder.Targets(sel.selector())
			if err != nil {
				return err
			}
			report, runErr := ws.builder.Run(cmd.Context(), targets)
			fprintln(cmd.OutOrStdout(), tui.RenderReport(report))
			if !watch {
				if runErr != nil {
					return runErr
				}
				return reportErr(report)
			}

			ignore := []string{a.cfg.OutputDir()}
			if a.cfg.Logging.Dir != "" {
				ignore = append(ignore, a.cfg.Logging.Dir)
			}
			fprintln(cmd.OutOrStdout(), "watching "+a.cfg.Source.Root+" (ctrl+c to stop)")
			return ws.builder.Watch(cmd.Context(), build.WatchOptions{
				Dirs:     []string{a.cfg.Source.Root},
				Ignore:   ignore,
				Selector: sel.selector(),
				OnReport: func(r *build.Report, err error) {
					if r != nil {
						fprintln(cmd.OutOrStdout(), tui.RenderReport(r))
					}
					if err != nil {
						fprintln(cmd.ErrOrStderr(), "error: "+err.Error())
					}
				},
			})
		},
	}
	sel.register(cmd.Flags(), true)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rebuild when sources change")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "rewrite bundles even when up to date")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "assemble and validate without writing")
	cmd.Flags().String("out", "", "output directory")
	cmd.Flags().Int("workers", 0, "parallel builds")
	cmd.Flags().Bool("strict", false, "fail teams on the first missing member or resource")
	return cmd
}

func reportErr(r *build.Report) error {
	if r == nil || r.OK() {
		return nil
	}
	return fmt.Errorf("%d of %d targets failed", r.Count(build.StatusFailed)+r.Count(build.StatusSkipped), len(r.Results))
}
