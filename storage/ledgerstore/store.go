// Package ledgerstore persists the debt ledger aggregate and positions in a
// key-value Database, satisfying the lending engine's State contract.
package ledgerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lumenlend/native/lending"
	"lumenlend/storage"
)

const (
	ledgerKey      = "lending/ledger"
	positionPrefix = "lending/position/"
)

var errEmptyAccount = errors.New("ledgerstore: empty account")

// Store implements lending.State over a storage.Database. Records are JSON
// with big integers serialized as decimal strings so snapshots stay readable
// in operational tooling.
type Store struct {
	db storage.Database
}

func New(db storage.Database) *Store {
	return &Store{db: db}
}

type ledgerRecord struct {
	TotalBorrows              string `json:"totalBorrows"`
	TotalBorrowsBeforeAccrual string `json:"totalBorrowsBeforeAccrual"`
	LastInterestAccrued       string `json:"lastInterestAccrued"`
	LastGlobalAccrualTime     uint64 `json:"lastGlobalAccrualTime"`
	ProtocolReserves          string `json:"protocolReserves"`
	UnroutedInterest          string `json:"unroutedInterest"`
	BadDebt                   string `json:"badDebt"`
	CumulativeBadDebt         string `json:"cumulativeBadDebt"`
	BadDebtCovered            string `json:"badDebtCovered"`
}

type positionRecord struct {
	Account         string `json:"account"`
	Principal       string `json:"principal"`
	AccruedInterest string `json:"accruedInterest"`
	LastAccrualTime uint64 `json:"lastAccrualTime"`
}

func (s *Store) Ledger() (*lending.LedgerState, error) {
	raw, err := s.db.Get([]byte(ledgerKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec ledgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	led := &lending.LedgerState{LastGlobalAccrualTime: rec.LastGlobalAccrualTime}
	if led.TotalBorrows, err = parseAmount(rec.TotalBorrows); err != nil {
		return nil, err
	}
	if led.TotalBorrowsBeforeAccrual, err = parseAmount(rec.TotalBorrowsBeforeAccrual); err != nil {
		return nil, err
	}
	if led.LastInterestAccrued, err = parseAmount(rec.LastInterestAccrued); err != nil {
		return nil, err
	}
	if led.ProtocolReserves, err = parseAmount(rec.ProtocolReserves); err != nil {
		return nil, err
	}
	if led.UnroutedInterest, err = parseAmount(rec.UnroutedInterest); err != nil {
		return nil, err
	}
	if led.BadDebt, err = parseAmount(rec.BadDebt); err != nil {
		return nil, err
	}
	if led.CumulativeBadDebt, err = parseAmount(rec.CumulativeBadDebt); err != nil {
		return nil, err
	}
	if led.BadDebtCovered, err = parseAmount(rec.BadDebtCovered); err != nil {
		return nil, err
	}
	return led, nil
}

func (s *Store) PutLedger(led *lending.LedgerState) error {
	if led == nil {
		return nil
	}
	rec := ledgerRecord{
		TotalBorrows:              formatAmount(led.TotalBorrows),
		TotalBorrowsBeforeAccrual: formatAmount(led.TotalBorrowsBeforeAccrual),
		LastInterestAccrued:       formatAmount(led.LastInterestAccrued),
		LastGlobalAccrualTime:     led.LastGlobalAccrualTime,
		ProtocolReserves:          formatAmount(led.ProtocolReserves),
		UnroutedInterest:          formatAmount(led.UnroutedInterest),
		BadDebt:                   formatAmount(led.BadDebt),
		CumulativeBadDebt:         formatAmount(led.CumulativeBadDebt),
		BadDebtCovered:            formatAmount(led.BadDebtCovered),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return s.db.Put([]byte(ledgerKey), raw)
}

func (s *Store) Position(account string) (*lending.Position, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, errEmptyAccount
	}
	raw, err := s.db.Get([]byte(positionPrefix + account))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec positionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", account, err)
	}
	pos := &lending.Position{Account: rec.Account, LastAccrualTime: rec.LastAccrualTime}
	if pos.Principal, err = parseAmount(rec.Principal); err != nil {
		return nil, err
	}
	if pos.AccruedInterest, err = parseAmount(rec.AccruedInterest); err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *Store) PutPosition(pos *lending.Position) error {
	if pos == nil {
		return nil
	}
	account := strings.TrimSpace(pos.Account)
	if account == "" {
		return errEmptyAccount
	}
	rec := positionRecord{
		Account:         account,
		Principal:       formatAmount(pos.Principal),
		AccruedInterest: formatAmount(pos.AccruedInterest),
		LastAccrualTime: pos.LastAccrualTime,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", account, err)
	}
	return s.db.Put([]byte(positionPrefix+account), raw)
}

func parseAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("ledgerstore: invalid amount %q", raw)
	}
	return v, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
