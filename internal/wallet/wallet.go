// Package wallet reads the tradable balances of the bot account.
package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
)

// AccountSource is the part of the hive client the reader needs.
type AccountSource interface {
	GetAccount(ctx context.Context, name string) (*hive.Account, error)
}

// Balances are liquid balances minus the safety buffer. Either may be negative.
type Balances struct {
	HBD  float64 `json:"hbd"`
	HIVE float64 `json:"hive"`
}

// Reader fetches balances for one account.
type Reader struct {
	source  AccountSource
	account string
	buffer  decimal.Decimal
}

// NewReader creates a Reader that keeps buffer of each asset untouched.
func NewReader(source AccountSource, account string, buffer float64) *Reader {
	return &Reader{
		source:  source,
		account: account,
		buffer:  decimal.NewFromFloat(buffer),
	}
}

// FetchBalances returns the available HBD and HIVE minus the buffer.
func (r *Reader) FetchBalances(ctx context.Context) (Balances, error) {
	acc, err := r.source.GetAccount(ctx, r.account)
	if err != nil {
		return Balances{}, fmt.Errorf("failed to fetch balances for %s: %w", r.account, err)
	}
	hbd, _ := acc.HBDBalance.Sub(r.buffer).Float64()
	hiveBal, _ := acc.Balance.Sub(r.buffer).Float64()
	return Balances{HBD: hbd, HIVE: hiveBal}, nil
}
