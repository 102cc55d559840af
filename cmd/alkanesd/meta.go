package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/alkanes-indexer/internal/config"
)

func metaCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "meta",
		Short: "print the resolved network fuel table and node configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			params := cfg.NetworkParams()
			fmt.Printf("network:        %s\n", params.Name)
			fmt.Printf("db_path:        %s\n", cfg.Node.DBPath)
			fmt.Printf("genesis_height: %d\n", params.GenesisHeight)
			fmt.Printf("total_fuel:     %d\n", params.TotalFuel)
			fmt.Printf("minimum_fuel:   %d\n", params.MinimumFuel)
			fmt.Printf("fuel_per_vbyte: %d\n", params.FuelPerVByte)
			fmt.Printf("view_addr:      %s\n", cfg.View.ListenAddr)
			return nil
		},
	}
}
