package params

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// BootstrapAsset is one asset entry in a bootstrap config file.
type BootstrapAsset struct {
	ID       string `json:"id"`
	PrecStor int32  `json:"prec_stor"`
	PrecShow int32  `json:"prec_show"`
}

// BootstrapMarket is one market entry in a bootstrap config file.
type BootstrapMarket struct {
	Name       string `json:"name"`
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	AmountPrec int32  `json:"amount_prec"`
	PricePrec  int32  `json:"price_prec"`
	FeePrec    int32  `json:"fee_prec"`
	MinAmount  string `json:"min_amount"`
}

// Bootstrap is the on-disk shape of the asset/market config a fresh
// engine loads at startup. It is read once, by main; debug_reset does
// not re-read it, so picking up edits to the file needs either a
// restart or a ReloadMarkets call carrying the new configs.
type Bootstrap struct {
	Assets  []BootstrapAsset  `json:"assets"`
	Markets []BootstrapMarket `json:"markets"`
}

// LoadBootstrap reads and validates the asset/market bootstrap file named
// by MATCHENGINE_MARKETS_CONFIG (default "./markets.json").
func LoadBootstrap(path string) (Bootstrap, error) {
	if path == "" {
		path = "./markets.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("read bootstrap config %s: %w", path, err)
	}
	var b Bootstrap
	if err := json.Unmarshal(data, &b); err != nil {
		return Bootstrap{}, fmt.Errorf("parse bootstrap config %s: %w", path, err)
	}
	return b, nil
}

// AssetConfigs converts the bootstrap asset list to asset.Config.
func (b Bootstrap) AssetConfigs() []asset.Config {
	out := make([]asset.Config, len(b.Assets))
	for i, a := range b.Assets {
		out[i] = asset.Config{ID: a.ID, PrecStor: a.PrecStor, PrecShow: a.PrecShow}
	}
	return out
}

// MarketConfigs converts the bootstrap market list to market.Config.
// Malformed min_amount decimals are rejected here rather than deep
// inside Market construction, so a bad bootstrap file fails loudly at
// startup instead of silently defaulting to zero.
func (b Bootstrap) MarketConfigs() ([]market.Config, error) {
	out := make([]market.Config, len(b.Markets))
	for i, m := range b.Markets {
		minAmount, err := types.Parse(m.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("market %s: min_amount: %w", m.Name, err)
		}
		out[i] = market.Config{
			Name: m.Name, Base: m.Base, Quote: m.Quote,
			AmountPrec: m.AmountPrec, PricePrec: m.PricePrec, FeePrec: m.FeePrec, MinAmount: minAmount,
		}
	}
	return out, nil
}
