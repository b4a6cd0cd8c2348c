// Package cli implements the phrasekit command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/phrasekit/phrasekit/pkg/config"
	"github.com/phrasekit/phrasekit/pkg/logger"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version    string
	verbose    bool
	configPath string
	cfg        *config.Config
	rootCmd    *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "phrasekit",
		Short:         "Suffix-array translation rule extractor",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initApp()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	c.rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to YAML config file")

	c.rootCmd.AddCommand(c.newBuildCommand())
	c.rootCmd.AddCommand(c.newQueryCommand())
}

// Run executes the CLI and returns any error.
func (c *CLI) Run() error {
	return c.rootCmd.Execute()
}

func (c *CLI) initApp() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	logger.Setup(level, cfg.Logging.Format)
	return nil
}
