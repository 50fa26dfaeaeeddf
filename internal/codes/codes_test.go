package codes

import (
	"strings"
	"testing"
)

func TestPrefixAndFirst(t *testing.T) {
	prefix := Prefix(SeriesSale, 2026)
	if prefix != "VE-2026-" {
		t.Fatalf("expected VE-2026-, got %s", prefix)
	}
	if got := First(prefix); got != "VE-2026-0001" {
		t.Fatalf("expected VE-2026-0001, got %s", got)
	}
	if got := First(Prefix(SeriesPurchase, 2026)); got != "OC-2026-0001" {
		t.Fatalf("expected OC-2026-0001, got %s", got)
	}
}

func TestNext(t *testing.T) {
	cases := []struct {
		last string
		want string
	}{
		{"VE-2026-0001", "VE-2026-0002"},
		{"VE-2026-0099", "VE-2026-0100"},
		{"OC-2026-0999", "OC-2026-1000"},
		{"OC-2026-9999", "OC-2026-10000"},
	}
	for _, tc := range cases {
		got, err := Next(tc.last)
		if err != nil {
			t.Fatalf("Next(%s): %v", tc.last, err)
		}
		if got != tc.want {
			t.Fatalf("Next(%s) = %s, want %s", tc.last, got, tc.want)
		}
	}
}

func TestNextRejectsMalformedCodes(t *testing.T) {
	for _, code := range []string{"", "VE-2026-", "nodashes", "VE-2026-abcd"} {
		if _, err := Next(code); err == nil {
			t.Fatalf("expected error for %q", code)
		}
	}
}

func TestRangeEndSortsAboveAllSuffixes(t *testing.T) {
	prefix := Prefix(SeriesSale, 2026)
	end := RangeEnd(prefix)
	if !(prefix+"9999" < end) {
		t.Fatalf("expected %q to sort above the highest suffix", end)
	}
}

func TestFallbackStaysInPrefix(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := Fallback(SeriesPurchase, 2026)
		if !strings.HasPrefix(code, "OC-2026-") {
			t.Fatalf("fallback code %s outside prefix", code)
		}
		if len(code) != len("OC-2026-0000") {
			t.Fatalf("fallback code %s has wrong width", code)
		}
	}
}
