package position

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quantaxe/perp-trader/internal/config"
	"github.com/quantaxe/perp-trader/internal/exchange"
)

// Sizer computes order quantities from account balance, risk fraction,
// leverage and contract constraints. It never fails its caller: every
// recoverable problem degrades to the configured fixed quantity so an
// order-sizing hiccup cannot block the trading loop.
type Sizer struct {
	cfg      *config.Config
	exchange exchange.Exchange
	log      *logrus.Logger

	mu    sync.Mutex
	specs map[string]exchange.ContractSpec
}

func NewSizer(cfg *config.Config, ex exchange.Exchange, log *logrus.Logger) *Sizer {
	return &Sizer{
		cfg:      cfg,
		exchange: ex,
		log:      log,
		specs:    make(map[string]exchange.ContractSpec),
	}
}

// spec returns the contract spec for symbol, cached for process lifetime.
func (s *Sizer) spec(ctx context.Context, symbol string) (exchange.ContractSpec, error) {
	s.mu.Lock()
	if spec, ok := s.specs[symbol]; ok {
		s.mu.Unlock()
		return spec, nil
	}
	s.mu.Unlock()

	spec, err := s.exchange.FetchContractSpec(ctx, symbol)
	if err != nil {
		return exchange.ContractSpec{}, err
	}
	s.mu.Lock()
	s.specs[symbol] = spec
	s.mu.Unlock()
	return spec, nil
}

// Calculate returns the order quantity for symbol at price. riskOverride > 0
// takes precedence over configured risk fractions; test mode overrides both.
func (s *Sizer) Calculate(ctx context.Context, symbol string, price float64, riskOverride float64) float64 {
	fallback := s.cfg.Trading.FixedQuantity

	if !s.cfg.Trading.DynamicSizing {
		return fallback
	}
	if price <= 0 {
		s.log.Warnf("Sizer | [%s] invalid price %g, using fixed quantity %g", symbol, price, fallback)
		return fallback
	}

	spec, err := s.spec(ctx, symbol)
	if err != nil {
		s.log.Warnf("Sizer | [%s] contract spec unavailable, using fixed quantity %g: %v", symbol, fallback, err)
		return fallback
	}

	balance, err := s.exchange.FetchAccountBalance(ctx, "USDT")
	if err != nil || balance <= 0 {
		s.log.Warnf("Sizer | [%s] balance unavailable (bal=%g err=%v), using fixed quantity %g", symbol, balance, err, fallback)
		return fallback
	}

	risk := s.riskFraction(symbol, riskOverride)
	leverage := s.cfg.LeverageFor(symbol)
	if spec.MaxLeverage > 0 && leverage > spec.MaxLeverage {
		s.log.Warnf("Sizer | [%s] leverage %gx exceeds contract max %gx, clamping", symbol, leverage, spec.MaxLeverage)
		leverage = spec.MaxLeverage
	}

	// Best effort: the order proceeds at whatever leverage the exchange has
	// if this fails.
	if err := s.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		s.log.Warnf("Sizer | [%s] failed to set leverage %gx: %v", symbol, leverage, err)
	}

	faceValue := spec.FaceValue
	if faceValue <= 0 {
		faceValue = 1
	}
	riskAmount := balance * risk
	nominal := riskAmount * leverage
	quantity := nominal / (price * faceValue)

	// Floor to the lot step, never round up.
	if spec.LotStep > 0 {
		quantity = math.Floor(quantity/spec.LotStep) * spec.LotStep
	}
	if spec.MinSize > 0 && quantity < spec.MinSize {
		s.log.Warnf("Sizer | [%s] sized quantity %g below contract minimum %g, clamping up", symbol, quantity, spec.MinSize)
		quantity = spec.MinSize
	}

	if quantity <= 0 {
		s.log.Warnf("Sizer | [%s] sized quantity %g invalid, using fixed quantity %g", symbol, quantity, fallback)
		return fallback
	}
	if maxSize := s.cfg.MaxPositionSizeFor(symbol); maxSize > 0 && quantity > maxSize {
		s.log.Warnf("Sizer | [%s] sized quantity %g above configured ceiling %g, using fixed quantity %g", symbol, quantity, maxSize, fallback)
		return fallback
	}

	s.log.Infof("Sizer | [%s] balance %g risk %.2f%% leverage %gx price %g -> quantity %g",
		symbol, balance, risk*100, leverage, price, quantity)
	return quantity
}

func (s *Sizer) riskFraction(symbol string, override float64) float64 {
	if s.cfg.TestMode {
		s.log.Warnf("Sizer | [%s] test mode active, forcing risk fraction to %.0f%%", symbol, config.TestModeRiskFraction*100)
		return config.TestModeRiskFraction
	}
	if override > 0 {
		return override
	}
	return s.cfg.RiskFractionFor(symbol)
}
