package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lumenlend/native/lending"
	"lumenlend/observability"
)

// Ledger is the slice of the debt ledger engine the HTTP surface drives.
type Ledger interface {
	SetTimestamp(ts uint64)
	AccrueInterest(account string) error
	Borrow(account string, amount *big.Int) error
	BorrowOnBehalf(delegate, account string, amount *big.Int) error
	Repay(account string, amount *big.Int) (*big.Int, error)
	WithdrawCollateral(account, token string, amount *big.Int) error
	Liquidate(liquidator, borrower, collateralToken string, debtToRepay *big.Int) (*big.Int, *big.Int, error)
	ReduceDebt(caller, account string, amount *big.Int) (*big.Int, error)
	RecordBadDebt(caller, account string) (*big.Int, error)
	CoverBadDebt(from string, amount *big.Int) (*big.Int, error)
	SocializeBadDebt(amount *big.Int) (*big.Int, error)
	WithdrawReserves(to string, amount *big.Int) error
	ReconcileTotalBorrows(accounts []string) (*big.Int, error)
	DrainUnroutedInterest() (*big.Int, error)
	QueueRiskParameters(params lending.RiskParameters) error
	ApplyRiskParameters() error
	RiskParameterView() lending.RiskParameters
	HealthFactor(account string) (*big.Int, error)
	TotalDebt(account string) (*big.Int, error)
	BorrowCapacity(account string) (*big.Int, error)
	PositionOf(account string) (*lending.Position, error)
	Ledger() (*lending.LedgerState, error)
}

// Pauser toggles the operational halt switch consulted by the engine.
type Pauser interface {
	SetPaused(module string, paused bool)
	IsPaused(module string) bool
}

// Server exposes the debt ledger over HTTP.
type Server struct {
	engine     Ledger
	pauses     Pauser
	log        *slog.Logger
	adminToken string
	now        func() uint64
}

// Option configures optional Server behaviour.
type Option func(*Server)

// WithClock overrides the timestamp source, used in tests.
func WithClock(now func() uint64) Option {
	return func(s *Server) { s.now = now }
}

// WithAdminToken gates the admin routes behind a bearer token.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = strings.TrimSpace(token) }
}

func New(engine Ledger, pauses Pauser, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		pauses: pauses,
		log:    log,
		now:    func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Router assembles the chi routing tree, including the metrics and health
// endpoints. ratePerMin of zero disables throttling.
func (s *Server) Router(ratePerMin int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if ratePerMin > 0 {
		r.Use(rateLimit(ratePerMin))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/collateral/withdraw", s.handleWithdrawCollateral)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/accrue", s.handleAccrue)
		r.Get("/positions/{account}", s.handlePosition)
		r.Get("/health/{account}", s.handleHealth)
		r.Get("/ledger", s.handleLedger)
		r.Get("/params", s.handleParams)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/reconcile", s.handleReconcile)
			r.Post("/drain-unrouted", s.handleDrainUnrouted)
			r.Post("/reduce-debt", s.handleReduceDebt)
			r.Post("/bad-debt/record", s.handleRecordBadDebt)
			r.Post("/bad-debt/cover", s.handleCoverBadDebt)
			r.Post("/bad-debt/socialize", s.handleSocializeBadDebt)
			r.Post("/reserves/withdraw", s.handleWithdrawReserves)
			r.Post("/params/queue", s.handleQueueParams)
			r.Post("/params/apply", s.handleApplyParams)
			r.Post("/pause", s.handlePause)
		})
	})
	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin surface disabled")
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token != s.adminToken {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tick advances the engine clock before a mutating operation.
func (s *Server) tick() {
	s.engine.SetTimestamp(s.now())
}

type amountRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		Delegate string `json:"delegate,omitempty"`
		Amount   string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	var err error
	if req.Delegate != "" {
		err = s.engine.BorrowOnBehalf(req.Delegate, req.Account, amount)
	} else {
		err = s.engine.Borrow(req.Account, amount)
	}
	observability.Lending().ObserveOperation("borrow", err)
	if err != nil {
		s.fail(w, r, "borrow", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	repaid, err := s.engine.Repay(req.Account, amount)
	observability.Lending().ObserveOperation("repay", err)
	if err != nil {
		s.fail(w, r, "repay", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": repaid.String()})
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Token   string `json:"token"`
		Amount  string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	err := s.engine.WithdrawCollateral(req.Account, req.Token, amount)
	observability.Lending().ObserveOperation("withdraw_collateral", err)
	if err != nil {
		s.fail(w, r, "withdraw collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Liquidator string `json:"liquidator"`
		Borrower   string `json:"borrower"`
		Token      string `json:"token"`
		Repay      string `json:"repay"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Repay)
	if !ok {
		return
	}
	s.tick()
	repaid, seized, err := s.engine.Liquidate(req.Liquidator, req.Borrower, req.Token, amount)
	observability.Lending().ObserveOperation("liquidate", err)
	if err != nil {
		s.fail(w, r, "liquidate", err)
		return
	}
	observability.Lending().ObserveLiquidation(req.Token, seized)
	writeJSON(w, http.StatusOK, map[string]string{
		"repaid": repaid.String(),
		"seized": seized.String(),
	})
}

func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.tick()
	err := s.engine.AccrueInterest(req.Account)
	observability.Lending().ObserveOperation("accrue", err)
	if err != nil {
		s.fail(w, r, "accrue", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	pos, err := s.engine.PositionOf(account)
	if err != nil {
		s.fail(w, r, "position", err)
		return
	}
	debt, err := s.engine.TotalDebt(account)
	if err != nil {
		s.fail(w, r, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":         pos.Account,
		"principal":       pos.Principal.String(),
		"accruedInterest": pos.AccruedInterest.String(),
		"lastAccrualTime": pos.LastAccrualTime,
		"totalDebt":       debt.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	health, err := s.engine.HealthFactor(account)
	if err != nil {
		s.fail(w, r, "health", err)
		return
	}
	capacity, err := s.engine.BorrowCapacity(account)
	if err != nil {
		s.fail(w, r, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"healthFactorBps": health.String(),
		"borrowCapacity":  capacity.String(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	led, err := s.engine.Ledger()
	if err != nil {
		s.fail(w, r, "ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalBorrows":          led.TotalBorrows.String(),
		"lastGlobalAccrualTime": led.LastGlobalAccrualTime,
		"protocolReserves":      led.ProtocolReserves.String(),
		"unroutedInterest":      led.UnroutedInterest.String(),
		"badDebt":               led.BadDebt.String(),
		"cumulativeBadDebt":     led.CumulativeBadDebt.String(),
		"badDebtCovered":        led.BadDebtCovered.String(),
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params := s.engine.RiskParameterView()
	writeJSON(w, http.StatusOK, map[string]any{
		"fallbackAnnualRateBps":       params.FallbackAnnualRateBps,
		"supplierShareBps":            params.SupplierShareBps,
		"minDebt":                     params.MinDebt.String(),
		"closeFactorBps":              params.CloseFactorBps,
		"fullLiquidationThresholdBps": params.FullLiquidationThresholdBps,
		"parameterDelay":              params.ParameterDelay,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accounts []string `json:"accounts"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.tick()
	drift, err := s.engine.ReconcileTotalBorrows(req.Accounts)
	observability.Lending().ObserveOperation("reconcile", err)
	if err != nil {
		s.fail(w, r, "reconcile", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"drift": drift.String()})
}

func (s *Server) handleDrainUnrouted(w http.ResponseWriter, r *http.Request) {
	s.tick()
	drained, err := s.engine.DrainUnroutedInterest()
	observability.Lending().ObserveOperation("drain_unrouted", err)
	if err != nil {
		s.fail(w, r, "drain unrouted", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"drained": drained.String()})
}

func (s *Server) handleReduceDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	reduced, err := s.engine.ReduceDebt(req.Caller, req.Account, amount)
	observability.Lending().ObserveOperation("reduce_debt", err)
	if err != nil {
		s.fail(w, r, "reduce debt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reduced": reduced.String()})
}

func (s *Server) handleRecordBadDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.tick()
	recorded, err := s.engine.RecordBadDebt(req.Caller, req.Account)
	observability.Lending().ObserveOperation("record_bad_debt", err)
	if err != nil {
		s.fail(w, r, "record bad debt", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"recorded": recorded.String()})
}

func (s *Server) handleCoverBadDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	covered, err := s.engine.CoverBadDebt(req.From, amount)
	observability.Lending().ObserveOperation("cover_bad_debt", err)
	if err != nil {
		s.fail(w, r, "cover bad debt", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"covered": covered.String()})
}

func (s *Server) handleSocializeBadDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	socialized, err := s.engine.SocializeBadDebt(amount)
	observability.Lending().ObserveOperation("socialize_bad_debt", err)
	if err != nil {
		s.fail(w, r, "socialize bad debt", err)
		return
	}
	s.publishAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"socialized": socialized.String()})
}

func (s *Server) handleWithdrawReserves(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	s.tick()
	err := s.engine.WithdrawReserves(req.To, amount)
	observability.Lending().ObserveOperation("withdraw_reserves", err)
	if err != nil {
		s.fail(w, r, "withdraw reserves", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueueParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FallbackAnnualRateBps       uint64 `json:"fallbackAnnualRateBps"`
		SupplierShareBps            uint64 `json:"supplierShareBps"`
		MinDebt                     string `json:"minDebt"`
		CloseFactorBps              uint64 `json:"closeFactorBps"`
		FullLiquidationThresholdBps uint64 `json:"fullLiquidationThresholdBps"`
		ParameterDelay              uint64 `json:"parameterDelay"`
	}
	if !decode(w, r, &req) {
		return
	}
	minDebt, ok := parseAmount(w, req.MinDebt)
	if !ok {
		return
	}
	s.tick()
	err := s.engine.QueueRiskParameters(lending.RiskParameters{
		FallbackAnnualRateBps:       req.FallbackAnnualRateBps,
		SupplierShareBps:            req.SupplierShareBps,
		MinDebt:                     minDebt,
		CloseFactorBps:              req.CloseFactorBps,
		FullLiquidationThresholdBps: req.FullLiquidationThresholdBps,
		ParameterDelay:              req.ParameterDelay,
	})
	if err != nil {
		s.fail(w, r, "queue params", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) handleApplyParams(w http.ResponseWriter, r *http.Request) {
	s.tick()
	if err := s.engine.ApplyRiskParameters(); err != nil {
		s.fail(w, r, "apply params", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if !decode(w, r, &req) {
		return
	}
	if s.pauses == nil {
		writeError(w, http.StatusConflict, "pause switchboard not configured")
		return
	}
	s.pauses.SetPaused(req.Module, req.Paused)
	s.log.Info("pause toggled", "module", req.Module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{
		"module": req.Module,
		"paused": s.pauses.IsPaused(req.Module),
	})
}

func (s *Server) publishAggregates() {
	led, err := s.engine.Ledger()
	if err != nil {
		return
	}
	observability.Lending().SetAggregates(led.TotalBorrows, led.UnroutedInterest, led.BadDebt)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("operation failed", "op", op, "path", r.URL.Path, "error", err)
	} else {
		s.log.Info("operation rejected", "op", op, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, publicMessage(err, status))
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed amount")
		return nil, false
	}
	return amount, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
