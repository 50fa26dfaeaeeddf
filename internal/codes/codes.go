// Package codes builds the sequential document codes used by purchases and
// sales. A code has the shape PREFIX-YYYY-NNNN where the numeric suffix is
// fixed-width, so lexicographic order matches numeric order within one year.
// Past 9999 the suffix widens and that property breaks; callers scanning for
// the highest code must compare suffix length before value.
package codes

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

type Series string

const (
	SeriesPurchase Series = "PURCHASE"
	SeriesSale     Series = "SALE"
)

const suffixWidth = 4

// Letters returns the two-letter code prefix for the series.
func (s Series) Letters() string {
	switch s {
	case SeriesPurchase:
		return "OC"
	case SeriesSale:
		return "VE"
	}
	return "XX"
}

// Prefix returns the year-scoped code prefix, e.g. "VE-2026-".
func Prefix(s Series, year int) string {
	return fmt.Sprintf("%s-%d-", s.Letters(), year)
}

// RangeEnd returns an exclusive upper bound for range scans over codes that
// share the given prefix. "~" sorts above every digit in ASCII.
func RangeEnd(prefix string) string {
	return prefix + "~"
}

// First returns the first code of a fresh prefix.
func First(prefix string) string {
	return prefix + strings.Repeat("0", suffixWidth-1) + "1"
}

// Next parses the numeric suffix of the greatest existing code and returns the
// incremented, zero-padded successor.
func Next(lastCode string) (string, error) {
	idx := strings.LastIndex(lastCode, "-")
	if idx < 0 || idx == len(lastCode)-1 {
		return "", fmt.Errorf("malformed code %q", lastCode)
	}
	suffix := lastCode[idx+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return "", fmt.Errorf("malformed code suffix %q: %w", suffix, err)
	}
	return fmt.Sprintf("%s-%0*d", lastCode[:idx], suffixWidth, n+1), nil
}

// Fallback returns a prefixed code with a random 4-digit suffix. It is the
// degraded path when the sequential scan cannot be trusted: the result is not
// guaranteed unique, so the insert must tolerate a collision and retry.
func Fallback(s Series, year int) string {
	return fmt.Sprintf("%s%04d", Prefix(s, year), 1000+rand.Intn(9000))
}
