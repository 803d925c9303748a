package main

import (
	"github.com/spf13/cobra"

	"github.com/RudreshVeerkhare/rheidos/session"
)

func (c *cli) graphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the resource dependency graph in Graphviz DOT form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			s, err := session.New(cfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			return session.WriteDOT(cmd.OutOrStdout(), s.Graph())
		},
	}
}
