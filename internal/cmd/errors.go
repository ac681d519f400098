package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errUsage marks a Cobra flag-parse or argument-count failure so main can
// map it to exit code 2 instead of the generic fatal-error exit code 1.
var errUsage = errors.New("usage error")

// IsUsageError reports whether err originated from flag parsing or
// argument-count validation rather than from running the command.
func IsUsageError(err error) bool {
	return errors.Is(err, errUsage)
}

// wireUsageErrors makes flag-parse and arg-count failures satisfy
// IsUsageError, and replaces Args with a wrapped equivalent of want.
func wireUsageErrors(cmd *cobra.Command, want cobra.PositionalArgs) {
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	cmd.Args = func(c *cobra.Command, args []string) error {
		if err := want(c, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}
