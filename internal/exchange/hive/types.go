package hive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifiers used by the market history API.
const (
	NAIHive = "@@000000021"
	NAIHBD  = "@@000000013"

	SymbolHive = "HIVE"
	SymbolHBD  = "HBD"
)

// Hive chain timestamps carry no zone and are always UTC.
const timeLayout = "2006-01-02T15:04:05"

// Time is a chain timestamp.
type Time struct {
	time.Time
}

// UnmarshalJSON parses "2006-01-02T15:04:05" as UTC.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSuffix(s, "Z")
	parsed, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid chain time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the chain format.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timeLayout))
}

// Asset is an amount in NAI form: {"amount":"1234","precision":3,"nai":"@@000000021"}.
// Amount is already scaled by Precision.
type Asset struct {
	Amount    decimal.Decimal
	Precision int32
	NAI       string
}

type rawAsset struct {
	Amount    string `json:"amount"`
	Precision int32  `json:"precision"`
	NAI       string `json:"nai"`
}

// UnmarshalJSON scales the raw integer amount by its own precision.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var raw rawAsset
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	units, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("invalid asset amount %q: %w", raw.Amount, err)
	}
	a.Amount = units.Shift(-raw.Precision)
	a.Precision = raw.Precision
	a.NAI = raw.NAI
	return nil
}

// MarshalJSON writes the NAI form back out.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawAsset{
		Amount:    a.Amount.Shift(a.Precision).Truncate(0).String(),
		Precision: a.Precision,
		NAI:       a.NAI,
	})
}

// Symbol returns HIVE, HBD or the raw NAI for anything else.
func (a Asset) Symbol() string {
	switch a.NAI {
	case NAIHive:
		return SymbolHive
	case NAIHBD:
		return SymbolHBD
	default:
		return a.NAI
	}
}

// Float64 returns the scaled amount.
func (a Asset) Float64() float64 {
	f, _ := a.Amount.Float64()
	return f
}

// ParseAssetString parses the legacy "12.345 HIVE" notation.
func ParseAssetString(s string) (decimal.Decimal, string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return decimal.Zero, "", fmt.Errorf("invalid asset string %q", s)
	}
	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid asset amount in %q: %w", s, err)
	}
	return amount, fields[1], nil
}

// FormatAsset renders amount in legacy notation, truncated to 3 decimals.
func FormatAsset(amount decimal.Decimal, symbol string) string {
	return amount.Truncate(3).StringFixed(3) + " " + symbol
}

// MarketTrade is a single fill from market_history_api.get_trade_history.
type MarketTrade struct {
	Date        Time  `json:"date"`
	CurrentPays Asset `json:"current_pays"`
	OpenPays    Asset `json:"open_pays"`
}

// flexFloat accepts both JSON numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", data, err)
	}
	*f = flexFloat(v)
	return nil
}

// Ticker holds the top of the internal market book in HBD per HIVE.
type Ticker struct {
	Latest     float64
	LowestAsk  float64
	HighestBid float64
}

type rawTicker struct {
	Latest     flexFloat `json:"latest"`
	LowestAsk  flexFloat `json:"lowest_ask"`
	HighestBid flexFloat `json:"highest_bid"`
}

// Account holds the liquid balances of an account.
type Account struct {
	Name       string
	Balance    decimal.Decimal // HIVE
	HBDBalance decimal.Decimal
}

type rawAccount struct {
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	HBDBalance string `json:"hbd_balance"`
}

// TransactionStatus reports where a transaction was included.
type TransactionStatus struct {
	TrxID    string `json:"transaction_id"`
	BlockNum uint32 `json:"block_num"`
}

// Confirmed reports whether the transaction is in a block.
func (s TransactionStatus) Confirmed() bool {
	return s.BlockNum > 0
}
