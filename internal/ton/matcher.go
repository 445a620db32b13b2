package ton

import "strings"

// valueTolerancePercent allows for the sending wallet's fee deduction
// rounding: a candidate still matches at 90% of the expected value.
const valueTolerancePercent = 90

// MatchIncoming scans candidates in indexer order (most recent first) and
// returns the first transaction that pays the expected destination at
// least 90% of the expected value with a comment containing the
// fingerprint. The second return is false when nothing matched, which is a
// normal outcome while the indexer catches up, not an error.
//
// Destination comparison always goes through address canonicalisation;
// candidates whose destination cannot be parsed are skipped.
func MatchIncoming(candidates []Transaction, expectedDestination Address, fp string, expectedValueNano uint64) (Transaction, bool) {
	minValue := expectedValueNano * valueTolerancePercent / 100

	for _, tx := range candidates {
		if tx.Destination == "" {
			continue
		}
		dest, err := ParseAddress(tx.Destination)
		if err != nil || !dest.Equal(expectedDestination) {
			continue
		}
		if tx.ValueNano < minValue {
			continue
		}
		// The comment normally carries a fixed tag plus the fingerprint,
		// but matching is deliberately lenient to the exact prefix.
		if !strings.Contains(tx.Comment, fp) {
			continue
		}
		return tx, true
	}
	return Transaction{}, false
}
