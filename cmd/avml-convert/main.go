package main

import (
	"fmt"
	"os"

	"github.com/volatileacq/avml/internal/acqerr"
	"github.com/volatileacq/avml/internal/cmd"
)

func main() {
	if err := cmd.ExecuteConvert(); err != nil {
		fmt.Fprintln(os.Stderr, acqerr.FormatChain(err))
		if cmd.IsUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
