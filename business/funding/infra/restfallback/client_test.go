package restfallback

import (
	"testing"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		exchange domain.ExchangeId
		symbol   string
		want     string
		wantOK   bool
	}{
		{domain.Binance, "BTCUSDT", "BTCUSDT", true},
		{domain.OKX, "BTCUSDT", "BTC-USDT-SWAP", true},
		{domain.MEXC, "BTCUSDT", "", false},
	}
	for _, c := range cases {
		got, ok := translate(c.exchange, c.symbol)
		if ok != c.wantOK || got != c.want {
			t.Errorf("translate(%v, %q) = (%q, %v), want (%q, %v)", c.exchange, c.symbol, got, ok, c.want, c.wantOK)
		}
	}
}

func TestNew_UnwiredExchangeFails(t *testing.T) {
	if _, err := New(domain.MEXC, nil); err == nil {
		t.Error("expected New to fail for an exchange with no configured REST fallback endpoint")
	}
}

func TestNew_WiredExchangeSucceeds(t *testing.T) {
	c, err := New(domain.Binance, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.exchange != domain.Binance {
		t.Errorf("exchange = %v, want binance", c.exchange)
	}
}
