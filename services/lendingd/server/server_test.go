package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "lumenlend/native/common"
	"lumenlend/native/lending"
)

// mockLedger satisfies Ledger with canned responses for handler tests.
type mockLedger struct {
	err        error
	repaid     *big.Int
	seized     *big.Int
	drift      *big.Int
	drained    *big.Int
	health     *big.Int
	timestamps []uint64
	borrows    []string
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		repaid:  big.NewInt(500),
		seized:  big.NewInt(52),
		drift:   big.NewInt(-37),
		drained: big.NewInt(7_500),
		health:  big.NewInt(12_500),
	}
}

func (m *mockLedger) SetTimestamp(ts uint64) { m.timestamps = append(m.timestamps, ts) }

func (m *mockLedger) AccrueInterest(string) error { return m.err }

func (m *mockLedger) Borrow(account string, _ *big.Int) error {
	if m.err != nil {
		return m.err
	}
	m.borrows = append(m.borrows, account)
	return nil
}

func (m *mockLedger) BorrowOnBehalf(_, account string, _ *big.Int) error {
	if m.err != nil {
		return m.err
	}
	m.borrows = append(m.borrows, account)
	return nil
}

func (m *mockLedger) Repay(string, *big.Int) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repaid, nil
}

func (m *mockLedger) WithdrawCollateral(string, string, *big.Int) error { return m.err }

func (m *mockLedger) Liquidate(string, string, string, *big.Int) (*big.Int, *big.Int, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.repaid, m.seized, nil
}

func (m *mockLedger) ReduceDebt(string, string, *big.Int) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repaid, nil
}

func (m *mockLedger) RecordBadDebt(string, string) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repaid, nil
}

func (m *mockLedger) CoverBadDebt(string, *big.Int) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repaid, nil
}

func (m *mockLedger) SocializeBadDebt(*big.Int) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.repaid, nil
}

func (m *mockLedger) WithdrawReserves(string, *big.Int) error { return m.err }

func (m *mockLedger) ReconcileTotalBorrows([]string) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.drift, nil
}

func (m *mockLedger) DrainUnroutedInterest() (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.drained, nil
}

func (m *mockLedger) QueueRiskParameters(lending.RiskParameters) error { return m.err }

func (m *mockLedger) ApplyRiskParameters() error { return m.err }

func (m *mockLedger) RiskParameterView() lending.RiskParameters {
	return lending.RiskParameters{MinDebt: big.NewInt(0)}
}

func (m *mockLedger) HealthFactor(string) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

func (m *mockLedger) TotalDebt(string) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return big.NewInt(11_000), nil
}

func (m *mockLedger) BorrowCapacity(string) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return big.NewInt(7_500), nil
}

func (m *mockLedger) PositionOf(account string) (*lending.Position, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &lending.Position{
		Account:         account,
		Principal:       big.NewInt(10_000),
		AccruedInterest: big.NewInt(1_000),
		LastAccrualTime: 1_700_000_000,
	}, nil
}

func (m *mockLedger) Ledger() (*lending.LedgerState, error) {
	if m.err != nil {
		return nil, m.err
	}
	led := &lending.LedgerState{
		TotalBorrows:          big.NewInt(11_000),
		UnroutedInterest:      big.NewInt(0),
		BadDebt:               big.NewInt(0),
		CumulativeBadDebt:     big.NewInt(0),
		BadDebtCovered:        big.NewInt(0),
		ProtocolReserves:      big.NewInt(0),
		LastGlobalAccrualTime: 1_700_000_000,
	}
	return led, nil
}

func newTestServer(t *testing.T, ledger Ledger, opts ...Option) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(ledger, nativecommon.NewSwitchboard(), log, opts...).Router(0)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBorrowEndpoint(t *testing.T) {
	ledger := newMockLedger()
	handler := newTestServer(t, ledger)

	rec := postJSON(t, handler, "/v1/borrow", map[string]string{
		"account": "bob",
		"amount":  "5000",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"bob"}, ledger.borrows)
	require.NotEmpty(t, ledger.timestamps, "handler must advance the engine clock")
}

func TestBorrowEndpointMalformedAmount(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	rec := postJSON(t, handler, "/v1/borrow", map[string]string{
		"account": "bob",
		"amount":  "five",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"capacity", lending.ErrCapacityExceeded, http.StatusConflict},
		{"invalid amount", lending.ErrInvalidAmount, http.StatusBadRequest},
		{"unauthorized", lending.ErrUnauthorizedCaller, http.StatusForbidden},
		{"paused", nativecommon.ErrModulePaused, http.StatusServiceUnavailable},
		{"oracle", lending.ErrOracleUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newMockLedger()
			ledger.err = tc.err
			handler := newTestServer(t, ledger)
			rec := postJSON(t, handler, "/v1/borrow", map[string]string{
				"account": "bob",
				"amount":  "5000",
			}, nil)
			require.Equal(t, tc.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestRepayEndpointReturnsActualAmount(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	rec := postJSON(t, handler, "/v1/repay", map[string]string{
		"account": "bob",
		"amount":  "10000",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "500", body["repaid"])
}

func TestLiquidateEndpoint(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	rec := postJSON(t, handler, "/v1/liquidate", map[string]string{
		"liquidator": "liq",
		"borrower":   "bob",
		"token":      "WETH",
		"repay":      "8000",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "500", body["repaid"])
	require.Equal(t, "52", body["seized"])
}

func TestPositionEndpoint(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	req := httptest.NewRequest(http.MethodGet, "/v1/positions/bob", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bob", body["account"])
	require.Equal(t, "10000", body["principal"])
	require.Equal(t, "11000", body["totalDebt"])
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	req := httptest.NewRequest(http.MethodGet, "/v1/health/bob", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "12500", body["healthFactorBps"])
	require.Equal(t, "7500", body["borrowCapacity"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	handler := newTestServer(t, newMockLedger(), WithAdminToken("s3cret"))

	rec := postJSON(t, handler, "/v1/admin/reconcile", map[string]any{
		"accounts": []string{"bob"},
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler, "/v1/admin/reconcile", map[string]any{
		"accounts": []string{"bob"},
	}, map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler, "/v1/admin/reconcile", map[string]any{
		"accounts": []string{"bob"},
	}, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "-37", body["drift"])
}

func TestAdminSurfaceDisabledWithoutToken(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	rec := postJSON(t, handler, "/v1/admin/drain-unrouted", map[string]string{}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPauseToggle(t *testing.T) {
	ledger := newMockLedger()
	pauses := nativecommon.NewSwitchboard()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := New(ledger, pauses, log, WithAdminToken("s3cret")).Router(0)

	rec := postJSON(t, handler, "/v1/admin/pause", map[string]any{
		"module": "lending",
		"paused": true,
	}, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, pauses.IsPaused("lending"))

	rec = postJSON(t, handler, "/v1/admin/pause", map[string]any{
		"module": "lending",
		"paused": false,
	}, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, pauses.IsPaused("lending"))
}

func TestRateLimitRejectsBursts(t *testing.T) {
	ledger := newMockLedger()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := New(ledger, nativecommon.NewSwitchboard(), log).Router(4)

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses[rec.Code]++
	}
	require.Positive(t, statuses[http.StatusTooManyRequests], "burst should trip the limiter")
	require.Positive(t, statuses[http.StatusOK])
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, newMockLedger())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
