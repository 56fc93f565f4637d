// internal/commands/show_config.go
package kolosalctl

import (
	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/mwiater/kolosalctl/internal/appconfig"
	"github.com/spf13/cobra"
)

// showCmd groups read-only inspection commands.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show client settings",
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings after defaults, the config file, KOLOSAL_* environment variables and flags have been applied.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			pp.ColoringEnabled = !color.NoColor
			_, _ = pp.Fprintln(cmd.OutOrStdout(), cfg)
			return
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), cfg.ConfigPath, cfg)
	},
}

func init() {
	showConfigCmd.Flags().Bool("raw", false, "dump the decoded config struct")
	showCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(showCmd)
}
