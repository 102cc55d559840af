// Package engine instantiates the sandboxed WebAssembly contract runtime
// via wasmer-go, grounded on the teacher's HeavyVM in
// core/virtual_machine.go (wasmer.NewEngine/NewStore/NewModule/NewInstance,
// a hostCtx closure bundle registered under import module "env").
// This package generalizes that four-function prototype to the full host
// ABI of spec.md §6 and adds the checkpoint/commit/rollback, fuel
// metering, and abort/revert handling spec.md §4.4 requires.
package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/storagemap"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

var log = logrus.WithField("component", "engine")

// PreGrowPages is the number of 64 KiB linear-memory pages the instance
// is grown to immediately after instantiation, so common contracts
// avoid page-growth traps mid-call (spec.md §4.4).
const PreGrowPages = 512

// MemoryLimitBytes is the size of guest linear memory after pre-growth
// (32 MiB, PreGrowPages*65536). wasmer-go v1.0.4 exposes no store-level
// memory limiter API, and this value is not enforced as a cap: a guest
// may grow memory beyond it. Host reads and writes bounds-check against
// the live memory length only.
const MemoryLimitBytes = PreGrowPages * 65536

var (
	// ErrGuestAbort is the error engine.Execute returns when the guest
	// called the imported abort() function.
	ErrGuestAbort = errors.New("engine: guest called abort")
	// ErrOutOfBounds signals a guest-supplied pointer/length pair that
	// would read or write outside live linear memory.
	ErrOutOfBounds = errors.New("engine: memory access out of bounds")
	// ErrInvalidPointer signals a malformed length-prefixed buffer.
	ErrInvalidPointer = errors.New("engine: invalid pointer layout")
	// ErrMissingExport is returned when the guest module lacks a
	// required export (memory or __execute).
	ErrMissingExport = errors.New("engine: required export missing")
)

// Dispatcher resolves and runs a sub-call on behalf of the guest's
// __call/__staticcall/__delegatecall imports. It is implemented by
// package extcall; engine depends only on this interface to avoid an
// import cycle (extcall in turn depends on engine to run the child).
type Dispatcher interface {
	Call(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error)
	Staticcall(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error)
	Delegatecall(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error)
}

// Engine owns one wasmer.Engine, reused across every instantiation.
type Engine struct {
	wasmEngine *wasmer.Engine
}

// New constructs an Engine.
func New() *Engine {
	return &Engine{wasmEngine: wasmer.NewEngine()}
}

// hostState is the mutable bundle every host import closure closes over,
// grounded on the teacher's hostCtx in core/virtual_machine.go.
type hostState struct {
	ctx        *runtime.RuntimeContext
	fuel       *fueltank.FuelTank
	params     fueltank.NetworkParams
	dispatcher Dispatcher
	memory     *wasmer.Memory
	failed     bool
	returndata []byte
}

func (h *hostState) data() []byte { return h.memory.Data() }

// readRaw returns a copy of length bytes starting at ptr, bounds-checked
// against live memory.
func (h *hostState) readRaw(ptr, length int32) ([]byte, error) {
	if ptr < 0 || length < 0 {
		return nil, ErrOutOfBounds
	}
	mem := h.data()
	end := int64(ptr) + int64(length)
	if end > int64(len(mem)) {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, length)
	copy(out, mem[ptr:end])
	return out, nil
}

// readLenPrefixed reads the 4-byte little-endian length immediately
// preceding ptr, then the payload itself (spec.md §4.4's ArrayBuffer
// convention).
func (h *hostState) readLenPrefixed(ptr int32) ([]byte, error) {
	if ptr < 4 {
		return nil, ErrInvalidPointer
	}
	lenBuf, err := h.readRaw(ptr-4, 4)
	if err != nil {
		return nil, ErrInvalidPointer
	}
	length := int32(binary.LittleEndian.Uint32(lenBuf))
	return h.readRaw(ptr, length)
}

// writeRaw copies data into guest memory starting at ptr, bounds-checked.
func (h *hostState) writeRaw(ptr int32, data []byte) error {
	if ptr < 0 {
		return ErrOutOfBounds
	}
	mem := h.data()
	end := int64(ptr) + int64(len(data))
	if end > int64(len(mem)) {
		return ErrOutOfBounds
	}
	copy(mem[ptr:end], data)
	return nil
}

func i32s(vs ...int32) []wasmer.Value {
	out := make([]wasmer.Value, len(vs))
	for i, v := range vs {
		out[i] = wasmer.NewI32(v)
	}
	return out
}

func fn(store *wasmer.Store, params, results []wasmer.ValueKind, cb func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
	return wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(results...)), cb)
}

const (
	i32 = wasmer.I32
	i64 = wasmer.I64
)

// registerHost wires the full "env" import module of spec.md §6, one
// wasmer.NewFunction closure per host call, following the teacher's
// registerHost pattern.
func registerHost(store *wasmer.Store, h *hostState) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	abort := fn(store, []wasmer.ValueKind{i32, i32, i32, i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		h.failed = true
		return nil, nil
	})

	requestStorage := fn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		key, err := h.readLenPrefixed(args[0].I32())
		if err != nil {
			return nil, err
		}
		if err := h.fuel.ConsumeFuel(h.params.FuelPerRequestByte * uint64(len(key))); err != nil {
			return nil, err
		}
		val := keys.StoragePointer(h.ctx.Message.Atomic, h.ctx.Myself).Select(key).Get()
		return i32s(int32(len(val))), nil
	})

	loadStorage := fn(store, []wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kPtr, vPtr := args[0].I32(), args[1].I32()
		key, err := h.readLenPrefixed(kPtr)
		if err != nil {
			return nil, err
		}
		val := keys.StoragePointer(h.ctx.Message.Atomic, h.ctx.Myself).Select(key).Get()
		if err := h.fuel.ConsumeFuel(h.params.FuelPerLoadByte * uint64(len(val))); err != nil {
			return nil, err
		}
		if err := h.writeRaw(vPtr, val); err != nil {
			return nil, err
		}
		return i32s(vPtr), nil
	})

	hostLog := fn(store, []wasmer.ValueKind{i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		msg, err := h.readLenPrefixed(args[0].I32())
		if err != nil {
			return nil, err
		}
		log.WithField("myself", h.ctx.Myself.String()).Debug(string(msg))
		return nil, nil
	})

	balance := fn(store, []wasmer.ValueKind{i32, i32, i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelBalance); err != nil {
			return nil, err
		}
		whoBuf, err := h.readLenPrefixed(args[0].I32())
		if err != nil {
			return nil, err
		}
		whatBuf, err := h.readLenPrefixed(args[1].I32())
		if err != nil {
			return nil, err
		}
		who, err := decodeAlkaneId(whoBuf)
		if err != nil {
			return nil, err
		}
		what, err := decodeAlkaneId(whatBuf)
		if err != nil {
			return nil, err
		}
		ledger := keys.LedgerID(h.ctx.Message.Outpoint, who)
		v := keys.BalancePointer(h.ctx.Message.Atomic, ledger, what).GetValueU128()
		le := v.MarshalLE()
		if err := h.writeRaw(args[2].I32(), le[:]); err != nil {
			return nil, err
		}
		return nil, nil
	})

	requestContext := fn(store, nil, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		buf := h.ctx.Serialize()
		if err := h.fuel.ConsumeFuel(h.params.FuelPerRequestByte * uint64(len(buf))); err != nil {
			return nil, err
		}
		return i32s(int32(len(buf))), nil
	})

	loadContext := fn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		buf := h.ctx.Serialize()
		if err := h.fuel.ConsumeFuel(h.params.FuelPerLoadByte * uint64(len(buf))); err != nil {
			return nil, err
		}
		ptr := args[0].I32()
		if err := h.writeRaw(ptr, buf); err != nil {
			return nil, err
		}
		return i32s(ptr), nil
	})

	sequence := fn(store, []wasmer.ValueKind{i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelSequence); err != nil {
			return nil, err
		}
		v := keys.SequencePointer(h.ctx.Message.Atomic).GetValueU128()
		le := v.MarshalLE()
		return nil, h.writeRaw(args[0].I32(), le[:])
	})

	fuelFn := fn(store, []wasmer.ValueKind{i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelFuel); err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], h.fuel.Remaining())
		return nil, h.writeRaw(args[0].I32(), buf[:])
	})

	height := fn(store, []wasmer.ValueKind{i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelHeight); err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], h.ctx.Message.Height)
		return nil, h.writeRaw(args[0].I32(), buf[:])
	})

	returndatacopy := fn(store, []wasmer.ValueKind{i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelPerLoadByte * uint64(len(h.returndata))); err != nil {
			return nil, err
		}
		return nil, h.writeRaw(args[0].I32(), h.returndata)
	})

	requestTransaction := fn(store, nil, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelLoadTransaction); err != nil {
			return nil, err
		}
		buf, err := serializeTx(h.ctx.Message.Tx)
		if err != nil {
			return nil, err
		}
		return i32s(int32(len(buf))), nil
	})
	loadTransaction := fn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		buf, err := serializeTx(h.ctx.Message.Tx)
		if err != nil {
			return nil, err
		}
		if err := h.fuel.ConsumeFuel(h.params.FuelPerLoadByte * uint64(len(buf))); err != nil {
			return nil, err
		}
		ptr := args[0].I32()
		if err := h.writeRaw(ptr, buf); err != nil {
			return nil, err
		}
		return i32s(ptr), nil
	})

	requestBlock := fn(store, nil, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := h.fuel.ConsumeFuel(h.params.FuelLoadBlock); err != nil {
			return nil, err
		}
		buf, err := serializeBlock(h.ctx.Message.Block)
		if err != nil {
			return nil, err
		}
		return i32s(int32(len(buf))), nil
	})
	loadBlock := fn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		buf, err := serializeBlock(h.ctx.Message.Block)
		if err != nil {
			return nil, err
		}
		if err := h.fuel.ConsumeFuel(h.params.FuelPerLoadByte * uint64(len(buf))); err != nil {
			return nil, err
		}
		ptr := args[0].I32()
		if err := h.writeRaw(ptr, buf); err != nil {
			return nil, err
		}
		return i32s(ptr), nil
	})

	extcall := func(invoke func(cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error)) *wasmer.Function {
		return fn(store, []wasmer.ValueKind{i32, i32, i32, i64}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			cellpackBuf, err := h.readLenPrefixed(args[0].I32())
			if err != nil {
				return nil, err
			}
			incomingBuf, err := h.readLenPrefixed(args[1].I32())
			if err != nil {
				return nil, err
			}
			storageBuf, err := h.readLenPrefixed(args[2].I32())
			if err != nil {
				return nil, err
			}
			fuelOffered := uint64(args[3].I64())

			cp, err := decodeCellpack(cellpackBuf)
			if err != nil {
				return nil, err
			}
			incoming, err := decodeParcel(incomingBuf)
			if err != nil {
				return nil, err
			}
			supplied, err := storagemap.Deserialize(storageBuf)
			if err != nil {
				return nil, err
			}

			if err := h.fuel.ConsumeFuel(h.params.FuelExtcall + h.params.FuelPerStoreByte*uint64(len(storageBuf))); err != nil {
				return nil, err
			}

			resp, _, err := invoke(cp, incoming, supplied, fuelOffered)
			if err != nil {
				h.returndata = nil
				return i32s(0), nil
			}
			h.returndata = resp.Serialize()
			return i32s(int32(len(h.returndata))), nil
		})
	}

	call := extcall(func(cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
		return h.dispatcher.Call(h.ctx, h.fuel, cp, incoming, supplied, fuelOffered)
	})
	staticcall := extcall(func(cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
		return h.dispatcher.Staticcall(h.ctx, h.fuel, cp, incoming, supplied, fuelOffered)
	})
	delegatecall := extcall(func(cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
		return h.dispatcher.Delegatecall(h.ctx, h.fuel, cp, incoming, supplied, fuelOffered)
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"abort":                abort,
		"__request_storage":    requestStorage,
		"__load_storage":       loadStorage,
		"__log":                hostLog,
		"__balance":            balance,
		"__request_context":    requestContext,
		"__load_context":       loadContext,
		"__sequence":           sequence,
		"__fuel":               fuelFn,
		"__height":             height,
		"__returndatacopy":     returndatacopy,
		"__request_transaction": requestTransaction,
		"__load_transaction":   loadTransaction,
		"__request_block":      requestBlock,
		"__load_block":         loadBlock,
		"__call":               call,
		"__staticcall":         staticcall,
		"__delegatecall":       delegatecall,
	})
	return imports
}

// serializeTx renders tx the way spec.md §6's __request_transaction /
// __load_transaction expose it to the guest: the canonical wire encoding,
// recomputed fresh on every call rather than cached (matching
// __request_context / __load_context's pattern below). A nil tx (no
// enclosing transaction for this message) serializes to an empty buffer.
func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	if tx == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("engine: serialize transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// serializeBlock is serializeTx's counterpart for __request_block /
// __load_block.
func serializeBlock(block *wire.MsgBlock) ([]byte, error) {
	if block == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("engine: serialize block: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAlkaneId(buf []byte) (types.AlkaneId, error) {
	if len(buf) < 32 {
		return types.AlkaneId{}, ErrInvalidPointer
	}
	block, err := types.UnmarshalU128LE(buf[0:16])
	if err != nil {
		return types.AlkaneId{}, err
	}
	tx, err := types.UnmarshalU128LE(buf[16:32])
	if err != nil {
		return types.AlkaneId{}, err
	}
	return types.AlkaneId{Block: block, Tx: tx}, nil
}

func decodeCellpack(buf []byte) (types.Cellpack, error) {
	values, err := types.DecodeVarintU128List(buf)
	if err != nil {
		return types.Cellpack{}, err
	}
	return types.ParseCellpack(values)
}

func decodeParcel(buf []byte) (types.AlkaneTransferParcel, error) {
	if len(buf) < 4 {
		if len(buf) == 0 {
			return nil, nil
		}
		return nil, ErrInvalidPointer
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	out := make(types.AlkaneTransferParcel, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 48 {
			return nil, ErrInvalidPointer
		}
		id, err := decodeAlkaneId(buf[0:32])
		if err != nil {
			return nil, err
		}
		val, err := types.UnmarshalU128LE(buf[32:48])
		if err != nil {
			return nil, err
		}
		out = append(out, types.AlkaneTransfer{ID: id, Value: val})
		buf = buf[48:]
	}
	return out, nil
}

// decodeExtendedCallResponse parses the guest's __execute return value:
// 4-byte data length + data, then a serialized AlkaneTransferParcel,
// then a serialized StorageMap (storagemap.Serialize's own format is
// self-delimiting, so it consumes the remainder of buf).
func decodeExtendedCallResponse(buf []byte) (runtime.ExtendedCallResponse, error) {
	if len(buf) < 4 {
		return runtime.ExtendedCallResponse{}, ErrInvalidPointer
	}
	dlen := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint32(len(buf)) < dlen {
		return runtime.ExtendedCallResponse{}, ErrInvalidPointer
	}
	data := buf[:dlen]
	buf = buf[dlen:]

	if len(buf) < 4 {
		return runtime.ExtendedCallResponse{}, ErrInvalidPointer
	}
	plen := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	out := make(types.AlkaneTransferParcel, 0, plen)
	for i := uint32(0); i < plen; i++ {
		if len(buf) < 48 {
			return runtime.ExtendedCallResponse{}, ErrInvalidPointer
		}
		id, err := decodeAlkaneId(buf[0:32])
		if err != nil {
			return runtime.ExtendedCallResponse{}, err
		}
		val, err := types.UnmarshalU128LE(buf[32:48])
		if err != nil {
			return runtime.ExtendedCallResponse{}, err
		}
		out = append(out, types.AlkaneTransfer{ID: id, Value: val})
		buf = buf[48:]
	}

	storage, err := storagemap.Deserialize(buf)
	if err != nil {
		return runtime.ExtendedCallResponse{}, err
	}
	return runtime.ExtendedCallResponse{Data: data, Alkanes: out, Storage: storage}, nil
}

// Execute runs the compiled binary's __execute export under ctx,
// implementing the call lifecycle of spec.md §4.4: open a checkpoint,
// invoke __execute, decode the response, and commit or roll back
// depending on abort/trap/revert-tag.
func (e *Engine) Execute(ctx *runtime.RuntimeContext, binary []byte, tank *fueltank.FuelTank, params fueltank.NetworkParams, dispatcher Dispatcher) (runtime.ExtendedCallResponse, error) {
	ctx.Message.Atomic.Checkpoint()

	store := wasmer.NewStore(e.wasmEngine)
	module, err := wasmer.NewModule(store, binary)
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("engine: compile module: %w", err)
	}

	h := &hostState{ctx: ctx, fuel: tank, params: params, dispatcher: dispatcher, returndata: ctx.Returndata}
	imports := registerHost(store, h)

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("engine: instantiate module: %w", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("%w: memory", ErrMissingExport)
	}
	h.memory = mem
	if mem.DataSize() < MemoryLimitBytes {
		growBy := (MemoryLimitBytes - mem.DataSize()) / 65536
		if growBy > 0 {
			_ = mem.Grow(wasmer.Pages(growBy))
		}
	}

	execFn, err := instance.Exports.GetFunction("__execute")
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("%w: __execute", ErrMissingExport)
	}

	result, callErr := execFn()
	if callErr != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("%w: %v", ErrGuestAbort, callErr)
	}
	if h.failed {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, ErrGuestAbort
	}

	ptr, ok := result.(int32)
	if !ok {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("%w: __execute must return i32", ErrInvalidPointer)
	}

	raw, err := h.readLenPrefixed(ptr)
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, err
	}

	resp, err := decodeExtendedCallResponse(raw)
	if err != nil {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, err
	}

	if runtime.IsRevert(resp.Data) {
		ctx.Message.Atomic.Rollback()
		return runtime.ExtendedCallResponse{}, fmt.Errorf("engine: contract revert: %s", runtime.RevertMessage(resp.Data))
	}

	ctx.Message.Atomic.Commit()
	return resp, nil
}
