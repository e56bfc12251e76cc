package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SymbolConfig is the trading setup of one symbol. Rule order is priority
// order.
type SymbolConfig struct {
	Code        string
	On          bool
	BuyEnabled  bool
	SellEnabled bool
	Buy         []BuyRule
	Sell        []SellRule
	UpdatedAt   time.Time
}

// HighWindows returns the distinct N-day high windows the buy rules need.
func (c SymbolConfig) HighWindows() []int {
	seen := map[int]bool{}
	for _, r := range c.Buy {
		if h, ok := r.(NDayHighBreakout); ok {
			seen[h.Days] = true
		}
	}
	return sortedKeys(seen)
}

// LowWindows returns the distinct N-day low windows the sell rules need.
func (c SymbolConfig) LowWindows() []int {
	seen := map[int]bool{}
	for _, r := range c.Sell {
		if l, ok := r.(NDayLowBreach); ok {
			seen[l.Days] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// SymbolRecord is the persisted per-symbol form.
type SymbolRecord struct {
	On       bool         `json:"on" yaml:"on"`
	BuyFlag  *bool        `json:"buy_flag,omitempty" yaml:"buy_flag,omitempty"`
	SellFlag *bool        `json:"sell_flag,omitempty" yaml:"sell_flag,omitempty"`
	Buy      []RuleRecord `json:"buy" yaml:"buy"`
	Sell     []RuleRecord `json:"sell" yaml:"sell"`
}

// Decode validates the record. Missing flags default to enabled.
func (r SymbolRecord) Decode(code string) (SymbolConfig, error) {
	cfg := SymbolConfig{Code: code, On: r.On, BuyEnabled: true, SellEnabled: true}
	if code == "" {
		return SymbolConfig{}, invalid("symbol code must not be empty")
	}
	if r.BuyFlag != nil {
		cfg.BuyEnabled = *r.BuyFlag
	}
	if r.SellFlag != nil {
		cfg.SellEnabled = *r.SellFlag
	}
	for i, rec := range r.Buy {
		rule, err := rec.BuyRule()
		if err != nil {
			return SymbolConfig{}, fmt.Errorf("%s: buy[%d]: %w", code, i, err)
		}
		cfg.Buy = append(cfg.Buy, rule)
	}
	for i, rec := range r.Sell {
		rule, err := rec.SellRule()
		if err != nil {
			return SymbolConfig{}, fmt.Errorf("%s: sell[%d]: %w", code, i, err)
		}
		cfg.Sell = append(cfg.Sell, rule)
	}
	return cfg, nil
}

// Record encodes the config with canonical names.
func (c SymbolConfig) Record() SymbolRecord {
	buy, sell := c.BuyEnabled, c.SellEnabled
	rec := SymbolRecord{
		On:       c.On,
		BuyFlag:  &buy,
		SellFlag: &sell,
		Buy:      make([]RuleRecord, 0, len(c.Buy)),
		Sell:     make([]RuleRecord, 0, len(c.Sell)),
	}
	for _, r := range c.Buy {
		rec.Buy = append(rec.Buy, BuyRecord(r))
	}
	for _, r := range c.Sell {
		rec.Sell = append(rec.Sell, SellRecord(r))
	}
	return rec
}

// MarshalJSON writes the persisted record form.
func (c SymbolConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code string `json:"code"`
		SymbolRecord
	}{c.Code, c.Record()})
}

// UnmarshalJSON reads the persisted record form; code is taken from the
// "code" field when present.
func (c *SymbolConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code string `json:"code"`
		SymbolRecord
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	code := raw.Code
	if code == "" {
		code = c.Code
	}
	cfg, err := raw.SymbolRecord.Decode(code)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// DecodeSymbolMap decodes a code-keyed record map, the layout of a symbol
// config file.
func DecodeSymbolMap(recs map[string]SymbolRecord) (map[string]SymbolConfig, error) {
	out := make(map[string]SymbolConfig, len(recs))
	for code, rec := range recs {
		cfg, err := rec.Decode(code)
		if err != nil {
			return nil, err
		}
		out[code] = cfg
	}
	return out, nil
}
