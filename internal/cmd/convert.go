package cmd

import (
	"github.com/spf13/cobra"

	"github.com/volatileacq/avml/internal/config"
	"github.com/volatileacq/avml/internal/convert"
)

var (
	sourceFormatFlag     string
	destFormatFlag       string
	convertConfigDirFlag string
)

// NewConvertCmd builds the avml-convert root command.
func NewConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "avml-convert --source-format FORMAT --format FORMAT <SRC> <DST>",
		Short:         "Convert between raw, lime, and lime_compressed container formats",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConvert,
	}
	wireUsageErrors(cmd, cobra.ExactArgs(2))

	flags := cmd.Flags()
	flags.StringVar(&sourceFormatFlag, "source-format", "", "Source format: raw, lime, or lime_compressed (required)")
	flags.StringVar(&destFormatFlag, "format", "", "Destination format: raw, lime, or lime_compressed (required)")
	flags.StringVar(&convertConfigDirFlag, "config-dir", "", "Override the config directory (default: ~/.config/avml)")
	cmd.MarkFlagRequired("source-format")
	cmd.MarkFlagRequired("format")

	return cmd
}

// ExecuteConvert runs the avml-convert command tree against os.Args.
func ExecuteConvert() error {
	return NewConvertCmd().Execute()
}

func runConvert(cmd *cobra.Command, args []string) error {
	config.SetConfigDir(convertConfigDirFlag)
	if _, err := config.Load(); err != nil {
		return err
	}

	srcFormat, err := convert.ParseFormat(sourceFormatFlag)
	if err != nil {
		return err
	}
	dstFormat, err := convert.ParseFormat(destFormatFlag)
	if err != nil {
		return err
	}

	return convert.Convert(srcFormat, dstFormat, args[0], args[1])
}
