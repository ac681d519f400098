// Package cmd builds the avml and avml-convert Cobra command trees: flag
// parsing, config-file defaulting, and dispatch into the snapshot engine,
// blob uploader, and format converter.
package cmd

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/volatileacq/avml/internal/blob"
	"github.com/volatileacq/avml/internal/config"
	"github.com/volatileacq/avml/internal/container"
	"github.com/volatileacq/avml/internal/iomem"
	"github.com/volatileacq/avml/internal/snapshot"
	"github.com/volatileacq/avml/internal/source"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	compressFlag               bool
	sourceFlag                 string
	maxDiskUsageMBFlag         uint64
	maxDiskUsagePercentageFlag float64
	urlFlag                    string
	sasURLFlag                 string
	sasBlockSizeMBFlag         uint64
	sasBlockConcurrencyFlag    uint64
	deleteFlag                 bool
	logLevelFlag               string
	avmlConfigDirFlag          string
)

// NewAvmlCmd builds the avml root command: an invocation that captures a
// snapshot and, optionally, ships it out, plus the "config" subcommand.
func NewAvmlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "avml <FILENAME>",
		Short:         "Capture a point-in-time image of physical memory",
		Long:          "avml acquires a snapshot of physical memory into a LiME-compatible container, optionally uploading it to remote storage before exiting.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAvml,
	}
	wireUsageErrors(cmd, cobra.ExactArgs(1))

	flags := cmd.Flags()
	flags.BoolVar(&compressFlag, "compress", false, "Write a Snappy-compressed (v2) container instead of uncompressed v1")
	flags.StringVar(&sourceFlag, "source", "", "Force a specific memory source: /dev/crash, /dev/mem, or /proc/kcore")
	flags.Uint64Var(&maxDiskUsageMBFlag, "max-disk-usage", 0, "Abort if the estimated image size exceeds this many MiB (0 disables the check)")
	flags.Float64Var(&maxDiskUsagePercentageFlag, "max-disk-usage-percentage", 0, "Abort if the image would consume more than this percentage of the destination filesystem (0 disables the check)")
	flags.StringVar(&urlFlag, "url", "", "Upload the finished image with a single streaming HTTP PUT to this URL")
	flags.StringVar(&sasURLFlag, "sas-url", "", "Upload the finished image to this Azure block-blob SAS URL")
	flags.Uint64Var(&sasBlockSizeMBFlag, "sas-block-size", 0, "Block size hint (MiB) for the SAS uploader (0 computes a default from the file size)")
	flags.Uint64Var(&sasBlockConcurrencyFlag, "sas-block-concurrency", 0, "Concurrent worker hint for the SAS uploader (0 computes a default)")
	flags.BoolVar(&deleteFlag, "delete", false, "Delete the local image after a successful upload")
	flags.StringVar(&logLevelFlag, "log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.StringVar(&avmlConfigDirFlag, "config-dir", "", "Override the config directory (default: ~/.config/avml)")

	cmd.AddCommand(newConfigCmd())

	return cmd
}

// ExecuteAvml runs the avml command tree against os.Args.
func ExecuteAvml() error {
	return NewAvmlCmd().Execute()
}

func runAvml(cmd *cobra.Command, args []string) error {
	destination := args[0]

	config.SetConfigDir(avmlConfigDirFlag)
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyAvmlConfigDefaults(cmd, cfg)

	level, err := logrus.ParseLevel(logLevelFlag)
	if err != nil {
		return fmt.Errorf("parsing --log-level: %w", err)
	}
	logrus.SetLevel(level)

	version := uint32(1)
	if compressFlag {
		version = 2
	}

	var explicitSource *source.Source
	if sourceFlag != "" {
		s, err := source.ParseSource(sourceFlag)
		if err != nil {
			return err
		}
		explicitSource = &s
	}

	isStdout := destination == "/dev/stdout"

	ranges, err := iomem.Parse()
	if err != nil {
		return err
	}
	ranges = iomem.Split(iomem.Merge(ranges), container.MaxBlockSize)

	req := snapshot.Request{
		Destination:            destination,
		IsStdout:               isStdout,
		Ranges:                 ranges,
		Version:                version,
		Source:                 explicitSource,
		MaxDiskUsageMB:         maxDiskUsageMBFlag,
		MaxDiskUsagePercentage: maxDiskUsagePercentageFlag,
	}
	if err := snapshot.Create(req); err != nil {
		return err
	}

	if isStdout {
		return nil
	}

	if err := uploadIfRequested(cmd, destination); err != nil {
		return err
	}

	if deleteFlag && (sasURLFlag != "" || urlFlag != "") {
		if err := os.Remove(destination); err != nil {
			logrus.Warnf("deleting %s after upload: %v", destination, err)
		}
	}

	return nil
}

// applyAvmlConfigDefaults fills in any flag the caller did not pass
// explicitly from the loaded config file; an explicitly-passed flag always
// wins over the file.
func applyAvmlConfigDefaults(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("compress") {
		compressFlag = cfg.DefaultCompress
	}
	if !flags.Changed("source") && cfg.DefaultSource != "" {
		sourceFlag = cfg.DefaultSource
	}
	if !flags.Changed("max-disk-usage") {
		maxDiskUsageMBFlag = cfg.MaxDiskUsageMB
	}
	if !flags.Changed("max-disk-usage-percentage") {
		maxDiskUsagePercentageFlag = cfg.MaxDiskUsagePercentage
	}
	if !flags.Changed("sas-block-size") {
		sasBlockSizeMBFlag = cfg.SasBlockSizeMB
	}
	if !flags.Changed("sas-block-concurrency") {
		sasBlockConcurrencyFlag = cfg.SasBlockConcurrency
	}
	if !flags.Changed("log-level") && cfg.LogLevel != "" {
		logLevelFlag = cfg.LogLevel
	}
}

func uploadIfRequested(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	switch {
	case sasURLFlag != "":
		u := &blob.Uploader{
			SasURL:          sasURLFlag,
			BlockSizeHintMB: sasBlockSizeMBFlag,
			ConcurrencyHint: sasBlockConcurrencyFlag,
			Progress:        logProgress(path),
		}
		return u.UploadFile(ctx, path)
	case urlFlag != "":
		return blob.PutFile(ctx, urlFlag, path, logProgress(path))
	default:
		return nil
	}
}

// logProgress reports cumulative upload progress at Debug level; avml has
// no progress-bar rendering (out of scope), just structured log lines.
func logProgress(path string) blob.ProgressFunc {
	var total atomic.Int64
	return func(delta int64) {
		logrus.Debugf("uploaded %d bytes of %s", total.Add(delta), path)
	}
}
