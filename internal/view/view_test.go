package view

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func TestParseU128DecimalRejectsGarbage(t *testing.T) {
	_, err := parseU128Decimal("not-a-number")
	require.Error(t, err)

	v, err := parseU128Decimal("12345")
	require.NoError(t, err)
	require.Equal(t, uint64(12345), v.Lo)
}

func TestWireAlkaneIdRoundTrip(t *testing.T) {
	w := wireAlkaneId{Block: 2, Tx: 1}
	require.True(t, w.id().Equal(types.NewAlkaneId(2, 1)))
}

func TestHandleBalanceReadsFromAtomic(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	outpoint := []byte("deadbeef")
	id := types.NewAlkaneId(2, 1)
	keys.BalancePointer(atomic, outpoint, id).SetValueU128(types.U128FromUint64(42))

	s := NewServer(atomic, nil, nil, fueltank.MainnetParams, 1000, 1000)
	req := httptest.NewRequest(http.MethodGet, "/balance/2/1/"+hex.EncodeToString(outpoint), nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "42", body["value"])
}

func TestHandleBatchBalanceFansOutConcurrently(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	outpointA := []byte("outpoint-a")
	outpointB := []byte("outpoint-b")
	id := types.NewAlkaneId(2, 1)
	keys.BalancePointer(atomic, outpointA, id).SetValueU128(types.U128FromUint64(7))
	keys.BalancePointer(atomic, outpointB, id).SetValueU128(types.U128FromUint64(11))

	s := NewServer(atomic, nil, nil, fueltank.MainnetParams, 1000, 1000)
	payload, err := json.Marshal([]batchBalanceQuery{
		{Outpoint: hex.EncodeToString(outpointA), ID: wireAlkaneId{Block: 2, Tx: 1}},
		{Outpoint: hex.EncodeToString(outpointB), ID: wireAlkaneId{Block: 2, Tx: 1}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/balances", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Equal(t, []string{"7", "11"}, results)
}

func TestRateLimitRejectsOverBudgetRequests(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	s := NewServer(atomic, nil, nil, fueltank.MainnetParams, 0, 1)
	router := s.Router()

	first := httptest.NewRequest(http.MethodGet, "/balance/2/1/ab", nil)
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, first)
	require.NotEqual(t, http.StatusTooManyRequests, rec1.Code)

	second := httptest.NewRequest(http.MethodGet, "/balance/2/1/ab", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, second)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}
