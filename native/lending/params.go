package lending

type pendingParameters struct {
	params    RiskParameters
	notBefore uint64
}

// RiskParameterView returns a copy of the active risk parameters.
func (e *Engine) RiskParameterView() RiskParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// QueueRiskParameters stages a parameter update behind the configured delay.
// Queuing again replaces the pending update and restarts the delay.
func (e *Engine) QueueRiskParameters(params RiskParameters) error {
	if params.CloseFactorBps > 10_000 || params.SupplierShareBps > 10_000 {
		return ErrInvalidParameters
	}
	if params.FullLiquidationThresholdBps >= 10_000 {
		return ErrInvalidParameters
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = &pendingParameters{
		params:    normalizeParams(params),
		notBefore: e.timestamp + e.params.ParameterDelay,
	}
	return nil
}

// ApplyRiskParameters activates the queued update once its delay elapsed.
func (e *Engine) ApplyRiskParameters() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return ErrNoPendingParameters
	}
	if e.timestamp < e.pending.notBefore {
		return ErrParameterDelay
	}
	e.params = e.pending.params
	e.pending = nil
	return nil
}
