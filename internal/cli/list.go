package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(a *app) *cobra.Command {
	var packDir string
	cmd := &cobra.Command{
		Use:       "list agents|teams|packs",
		Short:     "List agents, teams or expansion packs",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"agents", "teams", "packs"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Flags(), nil); err != nil {
				return err
			}
			ws, err := a.workspace(workspaceOptions{})
			if err != nil {
				return err
			}
			defer ws.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if args[0] == "packs" {
				packs, err := ws.packs.List()
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "DIR\tNAME\tVERSION\tTITLE")
				for _, p := range packs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Dir, p.Name(), dash(p.Config.Version), p.Title())
				}
				return nil
			}

			cat, err := ws.builder.Catalog(packDir)
			if err != nil {
				return err
			}
			if args[0] == "teams" {
				ids, err := cat.TeamIDs()
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "ID\tNAME\tMEMBERS")
				for _, id := range ids {
					team, err := cat.Team(id)
					if err != nil {
						fmt.Fprintf(tw, "%s\t(invalid)\t%s\n", id, firstLine(err.Error()))
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", id, team.Name, strings.Join(team.Members, ", "))
				}
				return nil
			}

			ids, err := cat.AgentIDs()
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tTITLE")
			for _, id := range ids {
				agent, err := cat.Agent(id)
				if err != nil {
					fmt.Fprintf(tw, "%s\t(invalid) %s\n", id, firstLine(err.Error()))
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\n", id, dash(agent.Title))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&packDir, "pack", "", "list what is visible from this expansion pack")
	return cmd
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
