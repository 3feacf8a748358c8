// Package cmd holds the root command shared by the threadsauto binary.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/version"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:           "threadsauto",
	Short:         "Keep a filtered, paginated job list in sync with its backend.",
	Long:          `Keep a filtered, paginated job list in sync with its backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Load()
		if err := logging.InitGlobal(); err != nil {
			colors.Warning(fmt.Sprintf("file logging disabled: %v", err))
		}
		colors.SetDebug(config.GetBool("debug", false))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.ShutdownGlobal()
	},
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.Version = version.String()

	// Hide the completion command
	RootCmd.CompletionOptions.HiddenDefaultCmd = true

	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != RootCmd {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		printHelpText(cmd)
	})
}

func printHelpText(cmd *cobra.Command) {
	commandOrder := []string{
		"watch",
		"list",
		"status",
		"serve",
		"seed",
		"version",
	}

	var cmdLines []string
	for _, name := range commandOrder {
		var found *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == name {
				found = c
				break
			}
		}
		if found == nil {
			continue
		}
		cmdLines = append(cmdLines, fmt.Sprintf("    %-16s %s", found.Name(), found.Short))
	}

	helpText := fmt.Sprintf(`threadsauto %s

Keep a filtered, paginated job list in sync with its backend.

USAGE:
    threadsauto [COMMAND] [OPTIONS]

COMMANDS:
%s

CONFIGURATION:
    $XDG_CONFIG_HOME/threadsauto/config.toml, THREADSAUTO_CONFIG_PATH,
    and THREADSAUTO_* environment variables.

OPTIONS:
    -h, --help      Show help message
`, version.String(), strings.Join(cmdLines, "\n"))
	fmt.Fprint(cmd.OutOrStdout(), helpText)
}
