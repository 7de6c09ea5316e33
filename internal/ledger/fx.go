package ledger

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Conversion describes how a source amount was brought into base currency.
type Conversion struct {
	Amount    float64
	From      string
	Rate      float64
	Converted bool
}

// Note renders the description suffix for converted amounts.
func (c Conversion) Note() string {
	if !c.Converted {
		return ""
	}
	return fmt.Sprintf(" (converted from %s @ %s)", c.From, trimFloat(c.Rate))
}

// Converter applies fixed configured rates quoted against one base currency.
type Converter struct {
	base  string
	rates map[string]float64
}

// NewConverter validates and normalises the rate table.
func NewConverter(base string, rates map[string]float64) (*Converter, error) {
	base = normalizeCurrency(base)
	if base == "" {
		return nil, fmt.Errorf("ledger: base currency required")
	}
	normalized := make(map[string]float64, len(rates))
	for cur, rate := range rates {
		cur = normalizeCurrency(cur)
		if cur == "" || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil, fmt.Errorf("ledger: invalid rate %q=%v", cur, rate)
		}
		normalized[cur] = rate
	}
	return &Converter{base: base, rates: normalized}, nil
}

// Base returns the base currency code.
func (c *Converter) Base() string {
	return c.base
}

// Convert returns amount expressed in the configured base currency, rounded
// to cents.
func (c *Converter) Convert(amount float64, currency string) (Conversion, error) {
	return c.ConvertTo(amount, currency, c.base)
}

// ConvertTo returns amount expressed in target, rounded to cents. Rates are
// quoted against the configured base, so a foreign target is crossed through
// it. An empty currency or target means the configured base.
func (c *Converter) ConvertTo(amount float64, currency, target string) (Conversion, error) {
	cur := normalizeCurrency(currency)
	to := normalizeCurrency(target)
	if to == "" {
		to = c.base
	}
	if cur == "" {
		cur = c.base
	}
	if cur == to {
		return Conversion{Amount: round2(amount), From: to, Rate: 1}, nil
	}
	from, err := c.rate(cur)
	if err != nil {
		return Conversion{}, err
	}
	into, err := c.rate(to)
	if err != nil {
		return Conversion{}, err
	}
	rate := from / into
	return Conversion{Amount: round2(amount * rate), From: cur, Rate: rate, Converted: true}, nil
}

func (c *Converter) rate(cur string) (float64, error) {
	if cur == c.base {
		return 1, nil
	}
	rate, ok := c.rates[cur]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateMissing, cur)
	}
	return rate, nil
}

// RatesFile is the on-disk rate table.
type RatesFile struct {
	Base  string             `yaml:"base"`
	Rates map[string]float64 `yaml:"rates"`
}

// LoadRatesFile reads a YAML rate table such as:
//
//	base: INR
//	rates:
//	  USD: 84
func LoadRatesFile(path string) (RatesFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RatesFile{}, fmt.Errorf("ledger: read rates: %w", err)
	}
	var file RatesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return RatesFile{}, fmt.Errorf("ledger: parse rates: %w", err)
	}
	return file, nil
}

// MergeRates overlays override onto base, returning a new map.
func MergeRates(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[normalizeCurrency(k)] = v
	}
	for k, v := range override {
		out[normalizeCurrency(k)] = v
	}
	return out
}

func normalizeCurrency(cur string) string {
	return strings.ToUpper(strings.TrimSpace(cur))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
