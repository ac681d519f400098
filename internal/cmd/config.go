package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volatileacq/avml/internal/config"
)

// newConfigCmd builds the "avml config" subcommand tree: show, get, set,
// and path, operating on ~/.config/avml/config.toml.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Manage avml configuration",
		Long:          "Show, get, and set values in the avml config file (~/.config/avml/config.toml).",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(avmlConfigDirFlag)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", config.ConfigPath())
			fmt.Fprintf(cmd.OutOrStdout(), "default_compress = %v\n", cfg.DefaultCompress)
			fmt.Fprintf(cmd.OutOrStdout(), "default_source = %s\n", cfg.DefaultSource)
			fmt.Fprintf(cmd.OutOrStdout(), "max_disk_usage_mb = %d\n", cfg.MaxDiskUsageMB)
			fmt.Fprintf(cmd.OutOrStdout(), "max_disk_usage_percentage = %g\n", cfg.MaxDiskUsagePercentage)
			fmt.Fprintf(cmd.OutOrStdout(), "sas_block_size_mb = %d\n", cfg.SasBlockSizeMB)
			fmt.Fprintf(cmd.OutOrStdout(), "sas_block_concurrency = %d\n", cfg.SasBlockConcurrency)
			fmt.Fprintf(cmd.OutOrStdout(), "log_level = %s\n", cfg.LogLevel)
			return nil
		},
	}

	configGetCmd := &cobra.Command{
		Use:           "get <KEY>",
		Short:         "Get a config value",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(avmlConfigDirFlag)
			val, err := config.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}
	wireUsageErrors(configGetCmd, cobra.ExactArgs(1))

	configSetCmd := &cobra.Command{
		Use:           "set <KEY> <VALUE>",
		Short:         "Set a config value",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(avmlConfigDirFlag)
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
	wireUsageErrors(configSetCmd, cobra.ExactArgs(2))

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(avmlConfigDirFlag)
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
			return nil
		},
	}

	configCmd.AddCommand(configGetCmd, configSetCmd, configPathCmd)
	return configCmd
}
