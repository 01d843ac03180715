package relay

// CostModel converts token volumes to currency units. The formula is a
// deliberate approximation: rates and allowances are configuration, and the
// only guaranteed property is that estimates and actuals are non-negative.
type CostModel struct {
	// EUR per 1000 prompt tokens.
	InputPer1K float64
	// EUR per 1000 completion tokens.
	OutputPer1K float64
	// MaxCompletionTokens is the completion ceiling sent upstream; the
	// estimate charges for it in full since the answer length is unknown
	// pre-call.
	MaxCompletionTokens int
	// OverheadTokens covers message framing the tokenizer adds around the
	// user content.
	OverheadTokens int
}

// DefaultCostModel carries the gpt-4o-mini rates converted to EUR.
func DefaultCostModel() CostModel {
	return CostModel{
		InputPer1K:          0.000552,
		OutputPer1K:         0.002208,
		MaxCompletionTokens: 384,
		OverheadTokens:      32,
	}
}

// Cost prices a known token split.
func (m CostModel) Cost(inputTokens, outputTokens int) float64 {
	cost := m.InputPer1K*float64(inputTokens)/1000 + m.OutputPer1K*float64(outputTokens)/1000
	if cost < 0 {
		return 0
	}
	return cost
}

// Estimate prices a request before the upstream call: all known input tokens
// plus the full completion ceiling.
func (m CostModel) Estimate(inputTokens int) float64 {
	return m.Cost(inputTokens+m.OverheadTokens, m.MaxCompletionTokens)
}

// Actual prices the usage the provider reported.
func (m CostModel) Actual(promptTokens, completionTokens int) float64 {
	return m.Cost(promptTokens, completionTokens)
}
