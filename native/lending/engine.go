package lending

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"lumenlend/core/events"
	nativecommon "lumenlend/native/common"
)

var (
	errNilState = errors.New("debt ledger: state not configured")

	ErrInvalidAmount       = errors.New("debt ledger: amount must be positive")
	ErrDustPosition        = errors.New("debt ledger: position would fall below minimum debt")
	ErrNoOutstandingDebt   = errors.New("debt ledger: no outstanding debt")
	ErrCapacityExceeded    = errors.New("debt ledger: borrow capacity exceeded")
	ErrHealthCheckFailed   = errors.New("debt ledger: health factor below threshold")
	ErrInsufficientDeposit = errors.New("debt ledger: insufficient collateral deposit")
	ErrNotLiquidatable     = errors.New("debt ledger: borrower not eligible for liquidation")
	ErrSelfLiquidation     = errors.New("debt ledger: borrower cannot liquidate themselves")
	ErrNothingToSeize      = errors.New("debt ledger: seizure would be empty")
	ErrUnauthorizedCaller  = errors.New("debt ledger: caller not authorized")
	ErrCollateralRemaining = errors.New("debt ledger: collateral value not exhausted")
	ErrInsufficientReserve = errors.New("debt ledger: insufficient protocol reserves")
	ErrOracleUnavailable   = errors.New("debt ledger: oracle price unavailable")
	ErrMintRejected        = errors.New("debt ledger: stablecoin mint rejected")
	ErrBurnRejected        = errors.New("debt ledger: stablecoin burn rejected")
	ErrNoPendingParameters = errors.New("debt ledger: no parameter update queued")
	ErrParameterDelay      = errors.New("debt ledger: parameter delay has not elapsed")
	ErrInvalidParameters   = errors.New("debt ledger: invalid risk parameters")
)

const moduleName = "lending"

// State is the persistence boundary for the debt ledger. Absent records are
// reported as (nil, nil); the engine materialises zero-valued defaults.
// Writes must become durable as issued: the engine persists accrual results
// before an operation's own validation, so a rejected operation still keeps
// the interval it accrued.
type State interface {
	Ledger() (*LedgerState, error)
	PutLedger(*LedgerState) error
	Position(account string) (*Position, error)
	PutPosition(*Position) error
}

// CollateralVault reports deposits and per-token configuration and performs
// collateral transfers on the ledger's behalf.
type CollateralVault interface {
	DepositsOf(account, token string) (*big.Int, error)
	SupportedTokens() ([]string, error)
	ConfigOf(token string) (TokenConfig, error)
	Withdraw(token string, amount *big.Int, to string) error
	Seize(borrower, token string, amount *big.Int, liquidator string) error
}

// PriceOracle values collateral. ValueUSD may fail while a circuit breaker is
// tripped; ValueUSDUnsafe bypasses the breaker and is reserved for the
// liquidation and withdrawal safety paths. Price is the raw USD (18 decimals)
// quote per whole token used by seizure sizing.
type PriceOracle interface {
	ValueUSD(token string, amount *big.Int) (*big.Int, error)
	ValueUSDUnsafe(token string, amount *big.Int) (*big.Int, error)
	Price(token string) (*big.Int, error)
}

// StableAuthority mints and burns the protocol stablecoin. Mint may fail when
// a system-wide issuance ceiling is reached.
type StableAuthority interface {
	Mint(to string, amount *big.Int) error
	Burn(from string, amount *big.Int) error
}

// YieldSink receives the supplier share of accrued interest. Address is the
// mint target; Receive may reject the forwarded funds.
type YieldSink interface {
	Address() string
	Receive(amount *big.Int) error
}

// SupplyEstimator approximates the aggregate stablecoin backing used as the
// total-supply input to utilisation math.
type SupplyEstimator interface {
	TotalBacking() (*big.Int, error)
}

// Engine orchestrates the debt ledger state transitions: accrual, borrowing,
// repayment, collateral withdrawal, liquidation and bad-debt resolution. All
// entry points run to completion under a single lock; intermediate states are
// never observable.
type Engine struct {
	mu sync.Mutex

	state     State
	vault     CollateralVault
	oracle    PriceOracle
	authority StableAuthority
	yield     YieldSink
	rateModel RateModel
	supply    SupplyEstimator
	emitter   events.Emitter
	pauses    nativecommon.PauseView

	params  RiskParameters
	pending *pendingParameters

	timestamp uint64

	reducers  map[string]bool
	delegates map[string]map[string]bool
}

// NewEngine constructs a debt ledger engine with the given risk parameters.
// Collaborators are wired through the Set methods before first use.
func NewEngine(params RiskParameters) *Engine {
	e := &Engine{
		reducers:  make(map[string]bool),
		delegates: make(map[string]map[string]bool),
	}
	e.params = normalizeParams(params)
	return e
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetVault wires the collateral vault collaborator.
func (e *Engine) SetVault(vault CollateralVault) { e.vault = vault }

// SetOracle wires the price oracle collaborator.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetAuthority wires the stablecoin mint/burn authority.
func (e *Engine) SetAuthority(authority StableAuthority) { e.authority = authority }

// SetYieldSink wires the supplier-interest destination.
func (e *Engine) SetYieldSink(sink YieldSink) { e.yield = sink }

// SetRateModel swaps the pluggable interest rate model. A nil model reverts
// the engine to the fallback fixed annual rate.
func (e *Engine) SetRateModel(model RateModel) {
	e.mu.Lock()
	e.rateModel = model
	e.mu.Unlock()
}

// SetSupplyEstimator wires the treasury backing estimator.
func (e *Engine) SetSupplyEstimator(est SupplyEstimator) { e.supply = est }

// SetEmitter wires the diagnostic event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) { e.emitter = emitter }

// SetPauses wires the module pause view checked at mutating entry points.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetTimestamp records the unix timestamp used for subsequent accrual math.
// The host advances it before each operation; accrual is idempotent per
// timestamp.
func (e *Engine) SetTimestamp(ts uint64) {
	e.mu.Lock()
	if ts > e.timestamp {
		e.timestamp = ts
	}
	e.mu.Unlock()
}

// AuthorizeDebtReducer registers a caller permitted to invoke ReduceDebt and
// RecordBadDebt (the liquidation engine and emergency-closure operators).
func (e *Engine) AuthorizeDebtReducer(caller string) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return
	}
	e.mu.Lock()
	e.reducers[caller] = true
	e.mu.Unlock()
}

// RevokeDebtReducer removes a previously authorized reducer.
func (e *Engine) RevokeDebtReducer(caller string) {
	e.mu.Lock()
	delete(e.reducers, strings.TrimSpace(caller))
	e.mu.Unlock()
}

// ApproveDelegate lets delegate receive borrow proceeds on behalf of account.
func (e *Engine) ApproveDelegate(account, delegate string) {
	account = strings.TrimSpace(account)
	delegate = strings.TrimSpace(delegate)
	if account == "" || delegate == "" {
		return
	}
	e.mu.Lock()
	if e.delegates[account] == nil {
		e.delegates[account] = make(map[string]bool)
	}
	e.delegates[account][delegate] = true
	e.mu.Unlock()
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(ev)
}

func (e *Engine) ensureLedger() (*LedgerState, error) {
	if e.state == nil {
		return nil, errNilState
	}
	led, err := e.state.Ledger()
	if err != nil {
		return nil, err
	}
	if led == nil {
		led = &LedgerState{LastGlobalAccrualTime: e.timestamp}
	}
	led.ensureDefaults()
	return led, nil
}

func (e *Engine) ensurePosition(account string) (*Position, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.Position(account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Account: account, LastAccrualTime: e.timestamp}
	}
	pos.ensureDefaults()
	return pos, nil
}

func (e *Engine) persist(led *LedgerState, pos *Position) error {
	if pos != nil {
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
	}
	if led != nil {
		if err := e.state.PutLedger(led); err != nil {
			return err
		}
	}
	return nil
}

// totalOwed is principal plus interest as accounted at the last accrual.
func totalOwed(pos *Position) *big.Int {
	return new(big.Int).Add(pos.Principal, pos.AccruedInterest)
}

func normalizeParams(p RiskParameters) RiskParameters {
	out := p.Clone()
	if out.MinDebt == nil {
		out.MinDebt = big.NewInt(0)
	}
	if out.SupplierShareBps == 0 || out.SupplierShareBps > 10_000 {
		out.SupplierShareBps = defaultSupplierShareBps
	}
	if out.CloseFactorBps == 0 || out.CloseFactorBps > 10_000 {
		out.CloseFactorBps = defaultCloseFactorBps
	}
	return out
}
