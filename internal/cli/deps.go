package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/build"
)

type depsResource struct {
	Ref  string `yaml:"ref"`
	Tier string `yaml:"tier"`
	Path string `yaml:"path"`
}

type depsSkipped struct {
	Member string `yaml:"member"`
	Ref    string `yaml:"ref,omitempty"`
	Error  string `yaml:"error"`
}

type depsOutput struct {
	Target    string         `yaml:"target"`
	Agents    []string       `yaml:"agents"`
	Resources []depsResource `yaml:"resources"`
	Skipped   []depsSkipped  `yaml:"skipped,omitempty"`
}

func newDepsCommand(a *app) *cobra.Command {
	var packDir string
	cmd := &cobra.Command{
		Use:       "deps agent|team <id>",
		Short:     "Print the resolved dependency set of an agent or team as YAML",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"agent", "team"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := artifact.Kind(args[0])
			target := build.Target{Kind: kind, ID: args[1], Pack: packDir}
			if err := target.Ref().Validate(); err != nil {
				return err
			}
			if err := a.load(cmd.Flags(), map[string]string{"build.strict": "strict"}); err != nil {
				return err
			}
			ws, err := a.workspace(workspaceOptions{})
			if err != nil {
				return err
			}
			defer ws.Close()

			_, set, err := ws.builder.Resolve(target)
			if err != nil {
				return err
			}
			out := depsOutput{Target: target.String(), Agents: set.AgentIDs()}
			for _, res := range set.Resources {
				out.Resources = append(out.Resources, depsResource{
					Ref:  res.Ref.String(),
					Tier: string(res.Tier),
					Path: res.Path,
				})
			}
			for _, s := range set.Skipped {
				entry := depsSkipped{Member: s.Member}
				if s.Ref.ID != "" {
					entry.Ref = s.Ref.String()
				}
				if s.Err != nil {
					entry.Error = s.Err.Error()
				}
				out.Skipped = append(out.Skipped, entry)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&packDir, "pack", "", "resolve in the context of this expansion pack")
	cmd.Flags().Bool("strict", false, "fail on the first missing member or resource")
	return cmd
}
