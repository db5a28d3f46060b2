package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-logtail/logtailcore/cfg"
	"github.com/open-logtail/logtailcore/internal/agent"
	"github.com/open-logtail/logtailcore/internal/logger"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	RuntimeConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "logtailcore [flags]",
	Short: "Tail configured log files and dispatch their content to a collector",
	Long: `logtailcore discovers files matching a set of watch configurations,
tails them exactly once across restarts, and hands completed log groups to a
sender. It is the core agent loop with no plugin pipeline attached.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.Rationalize(&RuntimeConfig); err != nil {
			return fmt.Errorf("rationalizing config: %w", err)
		}
		if err := cfg.ValidateConfig(&RuntimeConfig); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
		if err := logger.Init(RuntimeConfig.Logging); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		a, err := agent.New(&RuntimeConfig)
		if err != nil {
			return fmt.Errorf("constructing agent: %w", err)
		}
		return a.Run(cmd.Context())
	},
}

// Execute is the entry point invoked from cmd/logtailcore/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the agent's YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	RuntimeConfig = cfg.GetDefaultConfig()
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&RuntimeConfig, viper.DecodeHook(cfg.DecodeHook()))
		return
	}

	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&RuntimeConfig, viper.DecodeHook(cfg.DecodeHook()))
}
