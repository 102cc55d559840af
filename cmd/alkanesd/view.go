package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/alkanes-indexer/internal/config"
	"github.com/synnergy-labs/alkanes-indexer/internal/engine"
	"github.com/synnergy-labs/alkanes-indexer/internal/extcall"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/view"
)

func viewCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "serve read-only contract simulation and balance lookups over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setLogLevel(cfg.Node.LogLevel)

			backend, err := kv.OpenLevelDB(cfg.Node.DBPath)
			if err != nil {
				return fmt.Errorf("open leveldb at %s: %w", cfg.Node.DBPath, err)
			}
			defer backend.Close()

			atomic := kv.NewAtomicPointer(backend)
			params := cfg.NetworkParams()
			eng := engine.New()
			dispatcher := extcall.New(eng, params)

			srv := view.NewServer(atomic, eng, dispatcher, params, cfg.View.RateLimitPerSec, cfg.View.RateLimitBurst)
			return srv.ListenAndServe(cfg.View.ListenAddr)
		},
	}
}
