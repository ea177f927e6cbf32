package domain

import "strings"

// knownQuotes are the quote-asset suffixes the translators must recognise
// (spec §4.1): internal canonical form is base+quote concatenated, e.g.
// "BTCUSDT".
var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD"}

// SplitSymbol splits a canonical symbol into base/quote using the known
// quote suffixes, trying "USD" last so it doesn't shadow the longer "USDT",
// "USDC" or "BUSD". Returns ok=false if no known quote suffix matches.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	for _, q := range knownQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q, true
		}
	}
	return "", "", false
}
