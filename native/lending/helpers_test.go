package lending

import (
	"errors"
	"math/big"
	"testing"

	"lumenlend/core/events"
	nativecommon "lumenlend/native/common"
)

func mustBig(t *testing.T, v string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		t.Fatalf("malformed big int %q", v)
	}
	return out
}

// memState is an in-memory State. Reads and writes copy so the engine's
// working set never aliases stored records.
type memState struct {
	ledger    *LedgerState
	positions map[string]*Position
	failPut   error
}

func newMemState() *memState {
	return &memState{positions: make(map[string]*Position)}
}

func (s *memState) Ledger() (*LedgerState, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.Clone(), nil
}

func (s *memState) PutLedger(led *LedgerState) error {
	if s.failPut != nil {
		return s.failPut
	}
	s.ledger = led.Clone()
	return nil
}

func (s *memState) Position(account string) (*Position, error) {
	pos, ok := s.positions[account]
	if !ok {
		return nil, nil
	}
	return pos.Clone(), nil
}

func (s *memState) PutPosition(pos *Position) error {
	if s.failPut != nil {
		return s.failPut
	}
	s.positions[pos.Account] = pos.Clone()
	return nil
}

type seizure struct {
	borrower   string
	token      string
	amount     *big.Int
	liquidator string
}

type stubVault struct {
	tokens      []string
	configs     map[string]TokenConfig
	deposits    map[string]map[string]*big.Int
	withdrawals []seizure
	seizures    []seizure
	failSeize   error
}

func newStubVault() *stubVault {
	return &stubVault{
		configs:  make(map[string]TokenConfig),
		deposits: make(map[string]map[string]*big.Int),
	}
}

func (v *stubVault) addToken(token string, cfg TokenConfig) {
	v.tokens = append(v.tokens, token)
	v.configs[token] = cfg
}

func (v *stubVault) deposit(account, token string, amount *big.Int) {
	if v.deposits[account] == nil {
		v.deposits[account] = make(map[string]*big.Int)
	}
	v.deposits[account][token] = new(big.Int).Set(amount)
}

func (v *stubVault) DepositsOf(account, token string) (*big.Int, error) {
	amount := v.deposits[account][token]
	if amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

func (v *stubVault) SupportedTokens() ([]string, error) { return v.tokens, nil }

func (v *stubVault) ConfigOf(token string) (TokenConfig, error) {
	cfg, ok := v.configs[token]
	if !ok {
		return TokenConfig{}, errors.New("unknown token")
	}
	return cfg, nil
}

func (v *stubVault) Withdraw(token string, amount *big.Int, to string) error {
	v.withdrawals = append(v.withdrawals, seizure{token: token, amount: new(big.Int).Set(amount), borrower: to})
	return nil
}

func (v *stubVault) Seize(borrower, token string, amount *big.Int, liquidator string) error {
	if v.failSeize != nil {
		return v.failSeize
	}
	v.seizures = append(v.seizures, seizure{
		borrower:   borrower,
		token:      token,
		amount:     new(big.Int).Set(amount),
		liquidator: liquidator,
	})
	return nil
}

// stubOracle prices tokens at a fixed USD quote per whole token; amounts are
// scaled by the token's configured decimals. failSafe simulates a tripped
// circuit breaker on the guarded read path.
type stubOracle struct {
	prices   map[string]*big.Int
	decimals map[string]uint8
	failSafe error
}

func newStubOracle() *stubOracle {
	return &stubOracle{prices: make(map[string]*big.Int), decimals: make(map[string]uint8)}
}

func (o *stubOracle) setPrice(token string, price *big.Int, decimals uint8) {
	o.prices[token] = new(big.Int).Set(price)
	o.decimals[token] = decimals
}

func (o *stubOracle) value(token string, amount *big.Int) (*big.Int, error) {
	price, ok := o.prices[token]
	if !ok {
		return nil, errors.New("no quote")
	}
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, pow10(o.decimals[token])), nil
}

func (o *stubOracle) ValueUSD(token string, amount *big.Int) (*big.Int, error) {
	if o.failSafe != nil {
		return nil, o.failSafe
	}
	return o.value(token, amount)
}

func (o *stubOracle) ValueUSDUnsafe(token string, amount *big.Int) (*big.Int, error) {
	return o.value(token, amount)
}

func (o *stubOracle) Price(token string) (*big.Int, error) {
	price, ok := o.prices[token]
	if !ok {
		return nil, errors.New("no quote")
	}
	return new(big.Int).Set(price), nil
}

type transfer struct {
	account string
	amount  *big.Int
}

type stubAuthority struct {
	mints    []transfer
	burns    []transfer
	failMint error
	failBurn error
}

func (a *stubAuthority) Mint(to string, amount *big.Int) error {
	if a.failMint != nil {
		return a.failMint
	}
	a.mints = append(a.mints, transfer{account: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (a *stubAuthority) Burn(from string, amount *big.Int) error {
	if a.failBurn != nil {
		return a.failBurn
	}
	a.burns = append(a.burns, transfer{account: from, amount: new(big.Int).Set(amount)})
	return nil
}

type stubYield struct {
	addr        string
	received    []*big.Int
	failReceive error
}

func (y *stubYield) Address() string { return y.addr }

func (y *stubYield) Receive(amount *big.Int) error {
	if y.failReceive != nil {
		return y.failReceive
	}
	y.received = append(y.received, new(big.Int).Set(amount))
	return nil
}

type fixture struct {
	engine    *Engine
	state     *memState
	vault     *stubVault
	oracle    *stubOracle
	authority *stubAuthority
	yield     *stubYield
	pauses    *nativecommon.Switchboard
	recorder  *events.Recorder
}

func testParams() RiskParameters {
	return RiskParameters{
		FallbackAnnualRateBps:       500,
		SupplierShareBps:            9_000,
		MinDebt:                     big.NewInt(0),
		CloseFactorBps:              5_000,
		FullLiquidationThresholdBps: 2_500,
	}
}

func newFixture(t *testing.T, params RiskParameters) *fixture {
	t.Helper()
	f := &fixture{
		state:     newMemState(),
		vault:     newStubVault(),
		oracle:    newStubOracle(),
		authority: &stubAuthority{},
		yield:     &stubYield{addr: "yield-pool"},
		pauses:    nativecommon.NewSwitchboard(),
		recorder:  &events.Recorder{},
	}
	f.engine = NewEngine(params)
	f.engine.SetState(f.state)
	f.engine.SetVault(f.vault)
	f.engine.SetOracle(f.oracle)
	f.engine.SetAuthority(f.authority)
	f.engine.SetYieldSink(f.yield)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetPauses(f.pauses)
	return f
}

// seedLedger installs a ledger with outstanding borrows accrued through ts.
func (f *fixture) seedLedger(t *testing.T, totalBorrows *big.Int, ts uint64) {
	t.Helper()
	led := &LedgerState{
		TotalBorrows:          new(big.Int).Set(totalBorrows),
		LastGlobalAccrualTime: ts,
	}
	led.ensureDefaults()
	if err := f.state.PutLedger(led); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

// seedPosition installs a position accrued through ts.
func (f *fixture) seedPosition(t *testing.T, account string, principal, interest *big.Int, ts uint64) {
	t.Helper()
	pos := &Position{
		Account:         account,
		Principal:       new(big.Int).Set(principal),
		AccruedInterest: new(big.Int).Set(interest),
		LastAccrualTime: ts,
	}
	if err := f.state.PutPosition(pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}
}

func (f *fixture) ledger(t *testing.T) *LedgerState {
	t.Helper()
	led, err := f.state.Ledger()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if led == nil {
		t.Fatalf("ledger not persisted")
	}
	led.ensureDefaults()
	return led
}

func (f *fixture) position(t *testing.T, account string) *Position {
	t.Helper()
	pos, err := f.state.Position(account)
	if err != nil {
		t.Fatalf("read position: %v", err)
	}
	if pos == nil {
		t.Fatalf("position %s not persisted", account)
	}
	pos.ensureDefaults()
	return pos
}

func equalBig(t *testing.T, got *big.Int, want string, label string) {
	t.Helper()
	if got.String() != want {
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}
