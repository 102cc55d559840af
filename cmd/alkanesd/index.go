package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synnergy-labs/alkanes-indexer/internal/config"
	"github.com/synnergy-labs/alkanes-indexer/internal/engine"
	"github.com/synnergy-labs/alkanes-indexer/internal/extcall"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/genesis"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/pipeline"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// ingestTransfer/ingestEdict/ingestProtostone/ingestRecord mirror
// types.Edict/Protostone/Runestone as a JSON wire shape, since Bitcoin
// block deserialization and runestone decipherment are external
// collaborators per spec.md §1 ("consumed as a parsed structure") — this
// repo does not implement a runestone decoder, so `index` ingests
// already-decoded transactions, one JSON object per line, grouped in
// ascending height order (a block boundary is any change in Height).
type ingestTransfer struct {
	Block uint64 `json:"block"`
	Tx    uint64 `json:"tx"`
	Value string `json:"value"`
}

type ingestEdict struct {
	ingestTransfer
	Output uint32 `json:"output"`
}

type ingestProtostone struct {
	ProtocolTag uint64  `json:"protocol_tag"`
	Message     string  `json:"message"` // hex-encoded cellpack calldata
	Pointer     *uint32 `json:"pointer,omitempty"`
	Refund      *uint32 `json:"refund,omitempty"`
}

type ingestRecord struct {
	Height          uint64             `json:"height"`
	TxIndex         uint64             `json:"tx_index"`
	RawTx           string             `json:"raw_tx"` // hex-encoded wire.MsgTx
	Edicts          []ingestEdict      `json:"edicts"`
	Protostones     []ingestProtostone `json:"protostones"`
	InitialLeftover []ingestTransfer   `json:"initial_leftover"`
}

func parseDecimalU128(s string) (types.Uint128, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return types.Uint128{}, fmt.Errorf("invalid decimal u128 %q", s)
	}
	return types.U128FromBig(v)
}

func (t ingestTransfer) parcelEntry() (types.AlkaneTransfer, error) {
	v, err := parseDecimalU128(t.Value)
	if err != nil {
		return types.AlkaneTransfer{}, fmt.Errorf("parse value %q: %w", t.Value, err)
	}
	return types.AlkaneTransfer{ID: types.NewAlkaneId(t.Block, t.Tx), Value: v}, nil
}

func (r ingestRecord) decode() (*wire.MsgTx, types.Runestone, types.AlkaneTransferParcel, error) {
	raw, err := hex.DecodeString(r.RawTx)
	if err != nil {
		return nil, types.Runestone{}, nil, fmt.Errorf("decode raw_tx: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, types.Runestone{}, nil, fmt.Errorf("deserialize tx: %w", err)
	}

	rs := types.Runestone{}
	for _, e := range r.Edicts {
		entry, err := e.parcelEntry()
		if err != nil {
			return nil, types.Runestone{}, nil, err
		}
		rs.Edicts = append(rs.Edicts, types.Edict{ID: entry.ID, Amount: entry.Value, Output: e.Output})
	}
	for _, p := range r.Protostones {
		msg, err := hex.DecodeString(p.Message)
		if err != nil {
			return nil, types.Runestone{}, nil, fmt.Errorf("decode protostone message: %w", err)
		}
		rs.Protostones = append(rs.Protostones, types.Protostone{
			ProtocolTag: p.ProtocolTag,
			Message:     msg,
			Pointer:     p.Pointer,
			Refund:      p.Refund,
		})
	}

	var leftover types.AlkaneTransferParcel
	for _, t := range r.InitialLeftover {
		entry, err := t.parcelEntry()
		if err != nil {
			return nil, types.Runestone{}, nil, err
		}
		leftover = append(leftover, entry)
	}
	return tx, rs, leftover, nil
}

// decodedTx is one ingestRecord after hex/JSON decoding.
type decodedTx struct {
	txIndex   uint64
	tx        *wire.MsgTx
	runestone types.Runestone
	leftover  types.AlkaneTransferParcel
}

// pendingBlock buffers every decoded transaction for one height so the
// fuel tank can be initialized against the block's total virtual size
// before any of its transactions are fueled (spec.md §4.3).
type pendingBlock struct {
	height uint64
	txs    []decodedTx
	vsize  uint64
}

func indexCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "apply decoded transactions (JSON lines) to the persistent index",
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
			pl := pipeline.New(eng, dispatcher, params)
			tank := fueltank.New(params)

			var in io.Reader = os.Stdin
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open %s: %w", input, err)
				}
				defer f.Close()
				in = f
			}

			vsizeOf := func(tx *wire.MsgTx) uint64 {
				return (uint64(tx.SerializeSizeStripped())*3 + uint64(tx.SerializeSize()) + 3) / 4
			}

			var current *pendingBlock
			processed := 0
			flush := func() error {
				if current == nil {
					return nil
				}
				if current.height == params.GenesisHeight {
					if err := genesis.ApplyPremine(atomic, params); err != nil {
						return fmt.Errorf("apply genesis premine: %w", err)
					}
				}
				if err := tank.Initialize(params, current.vsize); err != nil {
					return fmt.Errorf("initialize fuel tank for height %d: %w", current.height, err)
				}
				for _, d := range current.txs {
					tank.FuelTransaction(vsizeOf(d.tx), d.txIndex)
					if err := pl.ProcessTransaction(atomic, tank, d.tx, nil, current.height, d.txIndex, d.runestone, d.leftover); err != nil {
						logrus.WithError(err).WithFields(logrus.Fields{"height": current.height, "tx_index": d.txIndex}).Warn("transaction processing failed")
						tank.DrainFuel()
					} else {
						tank.RefuelBlock()
					}
					processed++
				}
				return nil
			}

			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			for scanner.Scan() {
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}
				var rec ingestRecord
				if err := json.Unmarshal(line, &rec); err != nil {
					return fmt.Errorf("decode ingestion record: %w", err)
				}
				tx, runestone, leftover, err := rec.decode()
				if err != nil {
					return fmt.Errorf("record at height %d: %w", rec.Height, err)
				}

				if current == nil || current.height != rec.Height {
					if err := flush(); err != nil {
						return err
					}
					current = &pendingBlock{height: rec.Height}
				}
				current.txs = append(current.txs, decodedTx{txIndex: rec.TxIndex, tx: tx, runestone: runestone, leftover: leftover})
				current.vsize += vsizeOf(tx)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("scan input: %w", err)
			}
			if err := flush(); err != nil {
				return err
			}

			logrus.WithField("count", processed).Info("index: processed transactions")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "path to a JSON-lines ingestion file, or - for stdin")
	return cmd
}

func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
