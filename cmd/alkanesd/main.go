// Command alkanesd is the cobra CLI entrypoint wiring the index, view,
// trace, and meta subcommands, following the teacher's cmd/synnergy/main.go
// pattern (a bare cobra.Command tree, one constructor function per
// subcommand group) generalized from mock testnet/token commands to the
// real engine/pipeline/view wiring documented in SPEC_FULL.md §10.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synnergy-labs/alkanes-indexer/internal/config"
)

func main() {
	var env string

	root := &cobra.Command{
		Use:   "alkanesd",
		Short: "Bitcoin metaprotocol contract indexer",
	}
	root.PersistentFlags().StringVar(&env, "env", "", "config overlay name (merged over cmd/config/default.yaml)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(env)
	}

	root.AddCommand(indexCmd(loadConfig))
	root.AddCommand(viewCmd(loadConfig))
	root.AddCommand(traceCmd(loadConfig))
	root.AddCommand(metaCmd(loadConfig))

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("alkanesd: fatal")
		os.Exit(1)
	}
}
