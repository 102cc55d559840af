// Package view serves read-only contract simulation and balance lookups
// over HTTP, grounded on the teacher's HTTP API in
// core/virtual_machine.go (mux.NewRouter, rate-limiting middleware,
// http.Server lifecycle) generalized to alkanes' simulate/balance
// surface (spec.md §4.12's read-only "view" execution, never
// broadcasting or mutating the index).
package view

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/synnergy-labs/alkanes-indexer/internal/engine"
	"github.com/synnergy-labs/alkanes-indexer/internal/extcall"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/resolver"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

var log = logrus.WithField("component", "view")

// Server exposes /simulate and /balance over HTTP against a shared,
// rate-limited snapshot of the index.
type Server struct {
	Atomic     *kv.AtomicPointer
	Engine     *engine.Engine
	Dispatcher *extcall.Dispatcher
	Params     fueltank.NetworkParams

	limiter *rate.Limiter
}

// NewServer constructs a Server. perSec/burst configure the shared
// token-bucket limiter guarding every route, per the teacher's
// rate.NewLimiter(200, 100) default.
func NewServer(atomic *kv.AtomicPointer, eng *engine.Engine, dispatcher *extcall.Dispatcher, params fueltank.NetworkParams, perSec, burst int) *Server {
	return &Server{
		Atomic:     atomic,
		Engine:     eng,
		Dispatcher: dispatcher,
		Params:     params,
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router builds the mux.Router serving this Server's routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.rateLimit)
	r.HandleFunc("/simulate", s.handleSimulate).Methods("POST")
	r.HandleFunc("/balance/{block}/{tx}/{outpoint}", s.handleBalance).Methods("GET")
	r.HandleFunc("/balances", s.handleBatchBalance).Methods("POST")
	return r
}

// ListenAndServe builds the router and serves it at addr, following the
// teacher's timeout profile (5s read, 15s write, 30s idle).
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	log.WithField("addr", addr).Info("view server listening")
	return srv.ListenAndServe()
}

// wireAlkaneId is the JSON-friendly (block, tx) pair clients send in
// place of types.AlkaneId, whose Uint128 halves have no JSON encoding of
// their own.
type wireAlkaneId struct {
	Block uint64 `json:"block"`
	Tx    uint64 `json:"tx"`
}

func (w wireAlkaneId) id() types.AlkaneId { return types.NewAlkaneId(w.Block, w.Tx) }

func parseU128Decimal(s string) (types.Uint128, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return types.Uint128{}, fmt.Errorf("view: invalid decimal u128 %q", s)
	}
	return types.U128FromBig(v)
}

type simulateRequest struct {
	Target   wireAlkaneId `json:"target"`
	Inputs   []string     `json:"inputs"` // decimal u128 strings
	Incoming []struct {
		ID    wireAlkaneId `json:"id"`
		Value string       `json:"value"`
	} `json:"incoming"`
}

type simulateResponse struct {
	Data    string `json:"data_hex"`
	Reverts bool   `json:"reverts"`
	Error   string `json:"error,omitempty"`
}

// Simulate runs cp against the current index snapshot and always
// discards any state change it produces, regardless of outcome: it
// wraps the call in its own checkpoint and rolls that checkpoint back
// unconditionally after Execute's own inner checkpoint has merged down
// into it (spec.md §4.12).
func (s *Server) Simulate(cp types.Cellpack, incoming types.AlkaneTransferParcel) (runtime.ExtendedCallResponse, error) {
	s.Atomic.Checkpoint()
	defer s.Atomic.Rollback()

	rec := trace.NewRecorder()
	res, err := resolver.Resolve(s.Atomic, rec, cp.Target, nil)
	if err != nil {
		return runtime.ExtendedCallResponse{}, err
	}

	ctx := &runtime.RuntimeContext{
		Myself:   res.Target,
		Caller:   res.Target,
		Inputs:   cp.Inputs,
		Incoming: incoming,
		Message: &runtime.MessageView{
			Atomic: s.Atomic,
		},
		Trace: rec,
	}

	tank := fueltank.NewChildTank(s.Params, s.Params.TotalFuel)
	return s.Engine.Execute(ctx, res.Binary, tank, s.Params, s.Dispatcher)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inputs := make([]types.Uint128, 0, len(req.Inputs))
	for _, raw := range req.Inputs {
		v, err := parseU128Decimal(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inputs = append(inputs, v)
	}
	cp := types.Cellpack{Target: req.Target.id(), Inputs: inputs}

	incoming := make(types.AlkaneTransferParcel, 0, len(req.Incoming))
	for _, e := range req.Incoming {
		v, err := parseU128Decimal(e.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		incoming = append(incoming, types.AlkaneTransfer{ID: e.ID.id(), Value: v})
	}

	resp, err := s.Simulate(cp, incoming)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		json.NewEncoder(w).Encode(simulateResponse{Reverts: true, Error: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(simulateResponse{Data: hex.EncodeToString(resp.Data)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	outpoint, err := hex.DecodeString(vars["outpoint"])
	if err != nil {
		http.Error(w, "invalid outpoint", http.StatusBadRequest)
		return
	}
	block, err := strconv.ParseUint(vars["block"], 10, 64)
	if err != nil {
		http.Error(w, "invalid block", http.StatusBadRequest)
		return
	}
	tx, err := strconv.ParseUint(vars["tx"], 10, 64)
	if err != nil {
		http.Error(w, "invalid tx", http.StatusBadRequest)
		return
	}
	got := keys.BalancePointer(s.Atomic, outpoint, types.NewAlkaneId(block, tx)).GetValueU128()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"value": got.String()})
}

type batchBalanceQuery struct {
	Outpoint string       `json:"outpoint_hex"`
	ID       wireAlkaneId `json:"id"`
}

// handleBatchBalance fans a batch of balance lookups out concurrently
// via errgroup, bounding concurrency at the caller's request size
// (reads are independent key lookups against an already-resolved
// snapshot, so no ordering dependency exists between them).
func (s *Server) handleBatchBalance(w http.ResponseWriter, r *http.Request) {
	var queries []batchBalanceQuery
	if err := json.NewDecoder(r.Body).Decode(&queries); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]string, len(queries))
	g, _ := errgroup.WithContext(context.Background())
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			outpoint, err := hex.DecodeString(q.Outpoint)
			if err != nil {
				return err
			}
			results[i] = keys.BalancePointer(s.Atomic, outpoint, q.ID.id()).GetValueU128().String()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
