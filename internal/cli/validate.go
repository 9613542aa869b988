package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/agentpack/internal/deps"
	"github.com/kingrea/agentpack/internal/tui"
)

func newValidateCommand(a *app) *cobra.Command {
	var sel selectorFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every definition, dependency and size limit",
		Long: `Validate parses and resolves every selected target in strict mode,
audits capability ownership across all agents and measures every bundle
against the size limits. Nothing is written. The exit status is nonzero
when anything fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Flags(), nil); err != nil {
				return err
			}
			strict := deps.Strict
			ws, err := a.workspace(workspaceOptions{mode: &strict})
			if err != nil {
				return err
			}
			defer ws.Close()

			audit, err := ws.builder.Audit()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range audit.Violations {
				fprintln(out, "violation: "+v.Error())
			}
			for _, m := range audit.Missing {
				fprintln(out, "missing capability: "+m.Error())
			}
			for _, m := range audit.Malformed {
				fprintln(out, "malformed: "+m.Error())
			}

			targets, err := ws.builder.Targets(sel.selector())
			if err != nil {
				return err
			}
			report, runErr := ws.builder.Run(cmd.Context(), targets)
			fprintln(out, tui.RenderReport(report))
			switch {
			case !audit.IsValid():
				return fmt.Errorf("audit failed: %w", audit.Err())
			case runErr != nil:
				return runErr
			}
			return reportErr(report)
		},
	}
	sel.register(cmd.Flags(), true)
	return cmd
}
