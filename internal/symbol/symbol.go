// Package symbol classifies raw tickers into a canonical form, a market
// segment and a best-guess native currency. Pure string work, no network.
package symbol

import "strings"

// Segment is the market classification of a ticker.
type Segment int

const (
	SegmentDomestic Segment = iota // Warsaw exchange equity
	SegmentForeign                 // anything listed abroad
	SegmentIndex                   // market index
)

func (s Segment) String() string {
	switch s {
	case SegmentDomestic:
		return "domestic"
	case SegmentForeign:
		return "foreign"
	default:
		return "index"
	}
}

// Pence is the pseudo-currency code for pence-denominated London listings.
// Prices carrying it are divided by 100 and treated as GBP before FX.
const Pence = "GBX"

// Symbol is the classified form of a raw ticker. Currency is a guess derived
// from the exchange suffix; empty means unknown (callers default to USD when
// they must pick one).
type Symbol struct {
	Raw       string
	Canonical string
	Segment   Segment
	Currency  string
}

// suffixCurrency maps exchange suffixes to the currency the exchange quotes in.
var suffixCurrency = map[string]string{
	"WA": "PLN",
	"DE": "EUR",
	"F":  "EUR",
	"PA": "EUR",
	"AS": "EUR",
	"BR": "EUR",
	"MC": "EUR",
	"MI": "EUR",
	"VI": "EUR",
	"HE": "EUR",
	"LS": "EUR",
	"L":  Pence,
	"HK": "HKD",
	"T":  "JPY",
	"TO": "CAD",
	"V":  "CAD",
	"SW": "CHF",
	"SS": "CNY",
	"SZ": "CNY",
	"KS": "KRW",
	"KQ": "KRW",
	"AX": "AUD",
	"US": "USD",
}

// bare index names seen without the caret prefix.
var indexNames = map[string]struct{}{
	"WIG":    {},
	"WIG20":  {},
	"MWIG40": {},
	"SWIG80": {},
	"SPX":    {},
	"SP500":  {},
}

// Classify derives a Symbol from a raw ticker. Total: any input yields a
// classification, unknown suffixes just leave the currency guess empty.
func Classify(raw string) Symbol {
	canonical := strings.ToUpper(strings.TrimSpace(raw))
	sym := Symbol{Raw: raw, Canonical: canonical}

	if canonical == "" {
		sym.Segment = SegmentForeign
		return sym
	}
	if strings.HasPrefix(canonical, "^") {
		sym.Segment = SegmentIndex
		return sym
	}
	if _, ok := indexNames[canonical]; ok {
		sym.Segment = SegmentIndex
		return sym
	}

	if i := strings.LastIndex(canonical, "."); i >= 0 && i < len(canonical)-1 {
		suffix := canonical[i+1:]
		if cur, ok := suffixCurrency[suffix]; ok {
			sym.Currency = cur
			if suffix == "WA" {
				sym.Segment = SegmentDomestic
			} else {
				sym.Segment = SegmentForeign
			}
			return sym
		}
	}

	// No recognized suffix: a foreign listing with an unknown currency.
	sym.Segment = SegmentForeign
	return sym
}

// Base strips the exchange suffix from a canonical ticker ("XYZ.WA" -> "XYZ").
func (s Symbol) Base() string {
	if i := strings.LastIndex(s.Canonical, "."); i > 0 {
		return s.Canonical[:i]
	}
	return s.Canonical
}
