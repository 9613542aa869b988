package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/agentpack/internal/config"
	"github.com/kingrea/agentpack/internal/resource"
)

// scaffold lists the directories created below the core tier by init.
var scaffold = []resource.Type{
	resource.KindAgent,
	resource.KindTeam,
	resource.TypeTask,
	resource.TypeTemplate,
	resource.TypeChecklist,
	resource.TypeData,
	resource.TypeUtility,
	resource.TypeWorkflow,
}

func newInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName + " and the tier directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.sourceRoot()
			if err != nil {
				return err
			}
			path := filepath.Join(root, config.FileName)
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			defaults := config.Default()
			dirs := []string{defaults.Source.CommonDir, defaults.Source.PacksDir}
			for _, t := range scaffold {
				dirs = append(dirs, filepath.Join(defaults.Source.CoreDir, t.Dir()))
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration file")
	return cmd
}
