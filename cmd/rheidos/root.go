package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/RudreshVeerkhare/rheidos/session"
)

// cli holds shared state for all commands.
type cli struct {
	logger *log.Logger

	verbose    bool
	configPath string
}

func newCLI() *cli {
	return &cli{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           log.InfoLevel,
		}),
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "rheidos",
		Short:        "Rheidos solves Dirichlet-constrained Poisson problems on triangle meshes",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.logger.SetLevel(log.DebugLevel)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML configuration file")

	root.AddCommand(c.solveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.graphCommand())

	return root
}

// loadConfig resolves the session configuration: defaults, optionally
// overridden by the --config file.
func (c *cli) loadConfig() (session.Config, error) {
	if c.configPath == "" {
		return session.DefaultConfig(), nil
	}
	return session.LoadConfig(c.configPath)
}
