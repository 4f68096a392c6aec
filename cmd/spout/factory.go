package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spout/internal/application"
)

func factoryCmd(a *app) *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Generate candidates and run the tournament over them",
		Long: `Expands the brief into variants, generates candidates in parallel
streams until the target count is reached, writes the result files, and
then runs the tournament over the pool.

An interrupt stops generation after the in-flight batches; the tournament
still runs over what was collected.`,
		Example: `  spout factory -d "taglines for a coffee brand" -e "Wake up to wonder" -n 50
  spout factory -c spout.yaml --model anthropic/claude-sonnet-4-20250514`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFactory(cmd, o.apply(cmd.Flags(), a.cfg))
		},
	}
	o.bindGeneration(cmd.Flags())
	o.bindTournament(cmd.Flags())
	return cmd
}

func (a *app) runFactory(cmd *cobra.Command, cfg application.Config) error {
	p, err := a.newPipeline(cfg)
	if err != nil {
		return err
	}

	sum, err := p.Run(cmd.Context())
	if sum != nil {
		if _, werr := sum.WriteTo(cmd.OutOrStdout()); werr != nil {
			return fmt.Errorf("write summary: %w", werr)
		}
	}
	return err
}
