package symbol

import "testing"

func TestClassify_DomesticSuffix(t *testing.T) {
	s := Classify("xyz.wa")
	if s.Canonical != "XYZ.WA" || s.Segment != SegmentDomestic || s.Currency != "PLN" {
		t.Fatalf("unexpected: %+v", s)
	}
	if s.Base() != "XYZ" {
		t.Fatalf("base: %q", s.Base())
	}
}

func TestClassify_ForeignSuffixes(t *testing.T) {
	cases := []struct {
		raw      string
		currency string
	}{
		{"SAP.DE", "EUR"},
		{"AIR.PA", "EUR"},
		{"BARC.L", Pence},
		{"0700.HK", "HKD"},
		{"7203.T", "JPY"},
		{"SHOP.TO", "CAD"},
		{"NESN.SW", "CHF"},
		{"600519.SS", "CNY"},
		{"005930.KS", "KRW"},
		{"BHP.AX", "AUD"},
		{"AAPL.US", "USD"},
	}
	for _, c := range cases {
		s := Classify(c.raw)
		if s.Segment != SegmentForeign {
			t.Fatalf("%s: segment %v", c.raw, s.Segment)
		}
		if s.Currency != c.currency {
			t.Fatalf("%s: currency %q, want %q", c.raw, s.Currency, c.currency)
		}
	}
}

func TestClassify_UnknownSuffixYieldsNoGuess(t *testing.T) {
	s := Classify("AAPL")
	if s.Segment != SegmentForeign || s.Currency != "" {
		t.Fatalf("unexpected: %+v", s)
	}
	s = Classify("ABC.XX")
	if s.Currency != "" {
		t.Fatalf("unknown suffix guessed %q", s.Currency)
	}
}

func TestClassify_Indexes(t *testing.T) {
	for _, raw := range []string{"^GSPC", "^dji", "WIG20", "wig"} {
		s := Classify(raw)
		if s.Segment != SegmentIndex {
			t.Fatalf("%s: segment %v", raw, s.Segment)
		}
	}
}

func TestClassify_Total(t *testing.T) {
	// Never panics, always classifies.
	for _, raw := range []string{"", " ", ".", "X.", ".WA", "a b c"} {
		_ = Classify(raw)
	}
}
