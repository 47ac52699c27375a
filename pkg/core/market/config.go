package market

import (
	"fmt"

	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Config describes one trading pair, per spec.md §3 "Market config".
type Config struct {
	Name       string
	Base       string
	Quote      string
	AmountPrec int32
	PricePrec  int32
	FeePrec    int32
	MinAmount  types.Decimal
}

// validatePrecisions enforces the fail-fast invariants from spec.md §3:
//
//	amount_prec <= prec_stor(base)
//	amount_prec + price_prec <= prec_stor(quote)
//	(strict) amount_prec + fee_prec <= prec_stor(base)
//	(strict) amount_prec + price_prec + fee_prec <= prec_stor(quote)
func validatePrecisions(cfg Config, assets *asset.Manager, strictFee bool) error {
	baseStor, err := assets.PrecStor(cfg.Base)
	if err != nil {
		return fmt.Errorf("market %s: base asset %s: %w", cfg.Name, cfg.Base, err)
	}
	quoteStor, err := assets.PrecStor(cfg.Quote)
	if err != nil {
		return fmt.Errorf("market %s: quote asset %s: %w", cfg.Name, cfg.Quote, err)
	}
	if cfg.AmountPrec > baseStor {
		return fmt.Errorf("market %s: amount_prec %d exceeds base prec_stor %d", cfg.Name, cfg.AmountPrec, baseStor)
	}
	if cfg.AmountPrec+cfg.PricePrec > quoteStor {
		return fmt.Errorf("market %s: amount_prec+price_prec %d exceeds quote prec_stor %d",
			cfg.Name, cfg.AmountPrec+cfg.PricePrec, quoteStor)
	}
	if strictFee {
		if cfg.AmountPrec+cfg.FeePrec > baseStor {
			return fmt.Errorf("market %s: amount_prec+fee_prec %d exceeds base prec_stor %d",
				cfg.Name, cfg.AmountPrec+cfg.FeePrec, baseStor)
		}
		if cfg.AmountPrec+cfg.PricePrec+cfg.FeePrec > quoteStor {
			return fmt.Errorf("market %s: amount_prec+price_prec+fee_prec %d exceeds quote prec_stor %d",
				cfg.Name, cfg.AmountPrec+cfg.PricePrec+cfg.FeePrec, quoteStor)
		}
	}
	return nil
}
