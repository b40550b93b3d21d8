package signal

import (
	"regexp"
	"strings"
)

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH"}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,}-[A-Z0-9]{2,}$`)

// NormalizeSymbol приводит тикер к виду BASE-QUOTE (BTCUSDT, BINANCE:BTCUSDT.P, btc_usdt -> BTC-USDT).
func NormalizeSymbol(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".P")
	s = strings.NewReplacer("/", "-", "_", "-").Replace(s)
	if s == "" {
		return "", false
	}

	if !strings.Contains(s, "-") {
		for _, q := range knownQuotes {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				s = s[:len(s)-len(q)] + "-" + q
				break
			}
		}
	} else {
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' })
		if len(parts) >= 2 {
			s = parts[0] + "-" + parts[1]
		}
	}

	if !symbolPattern.MatchString(s) {
		return "", false
	}
	return s, true
}
