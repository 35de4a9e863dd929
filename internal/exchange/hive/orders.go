package hive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// ErrInvalidSide is returned for anything other than buy or sell.
var ErrInvalidSide = errors.New("invalid side, use 'buy' or 'sell'")

// LimitOrderCreate is the unsigned limit_order_create operation.
type LimitOrderCreate struct {
	Owner        string `json:"owner"`
	OrderID      uint32 `json:"orderid"`
	AmountToSell string `json:"amount_to_sell"`
	MinToReceive string `json:"min_to_receive"`
	FillOrKill   bool   `json:"fill_or_kill"`
	Expiration   Time   `json:"expiration"`

	// Side, Amount and Price describe the order in HIVE terms; not part of the operation.
	Side   string          `json:"-"`
	Amount decimal.Decimal `json:"-"`
	Price  decimal.Decimal `json:"-"`
}

// MarshalJSON writes the operation in condenser form: ["limit_order_create", {...}].
func (o LimitOrderCreate) MarshalJSON() ([]byte, error) {
	type body LimitOrderCreate
	return json.Marshal([]interface{}{"limit_order_create", body(o)})
}

// NewBuyOrder buys amount HIVE at price HBD per HIVE.
func NewBuyOrder(owner string, amount, price float64, now time.Time, expiration time.Duration) (*LimitOrderCreate, error) {
	return NewLimitOrder(owner, SideBuy, amount, price, now, expiration)
}

// NewSellOrder sells amount HIVE at price HBD per HIVE.
func NewSellOrder(owner string, amount, price float64, now time.Time, expiration time.Duration) (*LimitOrderCreate, error) {
	return NewLimitOrder(owner, SideSell, amount, price, now, expiration)
}

// NewLimitOrder builds a limit order for side. Amounts are truncated to 3 decimals.
func NewLimitOrder(owner, side string, amount, price float64, now time.Time, expiration time.Duration) (*LimitOrderCreate, error) {
	if owner == "" {
		return nil, errors.New("order owner is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive, got %f", amount)
	}
	if price <= 0 {
		return nil, fmt.Errorf("order price must be positive, got %f", price)
	}

	hiveAmount := decimal.NewFromFloat(amount).Truncate(3)
	hbdAmount := hiveAmount.Mul(decimal.NewFromFloat(price)).Truncate(3)
	if hiveAmount.IsZero() || hbdAmount.IsZero() {
		return nil, fmt.Errorf("order too small: %s HIVE at %f", hiveAmount.String(), price)
	}

	op := &LimitOrderCreate{
		Owner:      owner,
		OrderID:    uint32(now.Unix()),
		FillOrKill: false,
		Expiration: Time{now.Add(expiration).UTC().Truncate(time.Second)},
		Side:       side,
		Amount:     hiveAmount,
		Price:      decimal.NewFromFloat(price),
	}
	switch side {
	case SideBuy:
		op.AmountToSell = FormatAsset(hbdAmount, SymbolHBD)
		op.MinToReceive = FormatAsset(hiveAmount, SymbolHive)
	case SideSell:
		op.AmountToSell = FormatAsset(hiveAmount, SymbolHive)
		op.MinToReceive = FormatAsset(hbdAmount, SymbolHBD)
	default:
		return nil, fmt.Errorf("%q: %w", side, ErrInvalidSide)
	}
	return op, nil
}
