// internal/commands/root.go
package kolosalctl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mwiater/kolosalctl/internal/appconfig"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	envFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "kolosalctl",
	Short:         "kolosalctl: start, feed and talk to a local kolosal-server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := appconfig.LoadDotEnv(envFile); err != nil {
			return err
		}
		loaded, err := ensureConfigLoaded()
		if err != nil {
			return err
		}

		cfg, err := appconfig.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		if !loaded {
			cfg.ConfigPath = ""
		}
		currentConfig = &cfg

		if err := logging.Init(cfg.LogFilePath(), cfg.LogLevel()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), "%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	v := viper.GetViper()
	appconfig.SetDefaults(v)
	appconfig.BindEnv(v)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default $HOME/.kolosalctl.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("url", appconfig.DefaultServerURL, "kolosal-server base URL")
	flags.String("api-key", "", "API key sent as X-API-Key")
	flags.String("log-file", "", "path to the log file")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address while a command runs")

	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("server.url", flags.Lookup("url"))
	_ = viper.BindPFlag("server.api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return
	}
	if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigFile(filepath.Join(home, ".kolosalctl.yaml"))
	}
}

// ensureConfigLoaded reads the config file and reports whether one was found. A
// missing default file is not an error; a missing file named with --config is.
func ensureConfigLoaded() (bool, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) && cfgFile == "" {
			return false, nil
		}
		return false, fmt.Errorf("failed to load config: %w", err)
	}
	return true, nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	if currentConfig == nil {
		cfg := appconfig.Default()
		return &cfg
	}
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
