package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/alkanes-indexer/internal/config"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
)

func traceCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <txid-hex> <vout>",
		Short: "print the persisted trace log for an outpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setLogLevel(cfg.Node.LogLevel)

			txid, err := hex.DecodeString(args[0])
			if err != nil || len(txid) != 32 {
				return fmt.Errorf("txid must be 32 bytes of hex")
			}
			vout, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid vout: %w", err)
			}

			backend, err := kv.OpenLevelDB(cfg.Node.DBPath)
			if err != nil {
				return fmt.Errorf("open leveldb at %s: %w", cfg.Node.DBPath, err)
			}
			defer backend.Close()
			atomic := kv.NewAtomicPointer(backend)

			outpoint := make([]byte, 0, 36)
			outpoint = append(outpoint, txid...)
			var voutBytes [4]byte
			voutBytes[0] = byte(vout)
			voutBytes[1] = byte(vout >> 8)
			voutBytes[2] = byte(vout >> 16)
			voutBytes[3] = byte(vout >> 24)
			outpoint = append(outpoint, voutBytes[:]...)

			raw := keys.TracePointer(atomic, outpoint).Get()
			if raw == nil {
				fmt.Println("no trace recorded for this outpoint")
				return nil
			}
			count, err := trace.EventCount(raw)
			if err != nil {
				return err
			}
			fmt.Printf("%d event(s), %d bytes, hex:\n%s\n", count, len(raw), hex.EncodeToString(raw))
			return nil
		},
	}
}
