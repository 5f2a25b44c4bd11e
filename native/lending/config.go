package lending

import "math/big"

// Config is the file-backed runtime configuration for the debt ledger.
type Config struct {
	FallbackAnnualRateBps       uint64   `toml:"FallbackAnnualRateBps"`
	SupplierShareBps            uint64   `toml:"SupplierShareBps"`
	MinDebtWei                  *big.Int `toml:"MinDebtWei"`
	CloseFactorBps              uint64   `toml:"CloseFactorBps"`
	FullLiquidationThresholdBps uint64   `toml:"FullLiquidationThresholdBps"`
	ParameterDelaySeconds       uint64   `toml:"ParameterDelaySeconds"`
}

// EnsureDefaults populates zero-valued fields with the protocol defaults.
func (c *Config) EnsureDefaults() {
	if c.FallbackAnnualRateBps == 0 {
		c.FallbackAnnualRateBps = 500
	}
	if c.SupplierShareBps == 0 {
		c.SupplierShareBps = defaultSupplierShareBps
	}
	if c.MinDebtWei == nil {
		c.MinDebtWei = mustBigInt("1000000000000000000") // 1 stablecoin
	}
	if c.CloseFactorBps == 0 {
		c.CloseFactorBps = defaultCloseFactorBps
	}
	if c.FullLiquidationThresholdBps == 0 {
		c.FullLiquidationThresholdBps = 2_500
	}
}

// RiskParameters converts the configuration into engine parameters.
func (c Config) RiskParameters() RiskParameters {
	cfg := c
	cfg.EnsureDefaults()
	return RiskParameters{
		FallbackAnnualRateBps:       cfg.FallbackAnnualRateBps,
		SupplierShareBps:            cfg.SupplierShareBps,
		MinDebt:                     new(big.Int).Set(cfg.MinDebtWei),
		CloseFactorBps:              cfg.CloseFactorBps,
		FullLiquidationThresholdBps: cfg.FullLiquidationThresholdBps,
		ParameterDelay:              cfg.ParameterDelaySeconds,
	}
}
