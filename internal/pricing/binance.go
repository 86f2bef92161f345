package pricing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gradebook/internal/outcome"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceConfig controls the futures REST endpoint used for price lookup.
type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Binance implements Source against the Binance futures REST API.
type Binance struct {
	cfg    BinanceConfig
	client *futures.Client
}

var _ Source = (*Binance)(nil)

// NewBinance builds a price source from configuration. No API key is needed
// for public price endpoints.
func NewBinance(cfg BinanceConfig) *Binance {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Binance{cfg: final, client: client}
}

// CurrentPrice fetches the latest price for symbol ("BTC/USDT" or "BTCUSDT").
func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	exchangeSymbol := ToExchangeSymbol(symbol)
	if exchangeSymbol == "" {
		return 0, &outcome.LookupError{Symbol: symbol, Err: fmt.Errorf("empty symbol")}
	}
	prices, err := b.client.NewListPricesService().Symbol(exchangeSymbol).Do(ctx)
	if err != nil {
		return 0, &outcome.LookupError{Symbol: symbol, Err: err}
	}
	if len(prices) == 0 {
		return 0, &outcome.LookupError{Symbol: symbol, Err: fmt.Errorf("no price returned")}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(prices[0].Price), 64)
	if err != nil || value <= 0 {
		return 0, &outcome.LookupError{Symbol: symbol, Err: fmt.Errorf("bad price %q", prices[0].Price)}
	}
	return value, nil
}

// ToExchangeSymbol converts an internal pair like "BTC/USDT" or
// "ETH/USDT:USDT" to the Binance form "BTCUSDT".
func ToExchangeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}
