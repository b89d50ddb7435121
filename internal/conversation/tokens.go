// ABOUTME: Token estimation used for local quota accounting
// ABOUTME: A fixed 4-bytes-per-token heuristic, not model-accurate tokenization

package conversation

// EstimateTokens approximates the token count of text as ceil(len/4) over
// its UTF-8 bytes. The heuristic is deliberately crude: it exists for local
// accounting and cost display, and makes no attempt to match any model's
// real tokenizer.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateCost computes (totalTokens / 1000) × ratePerKilotoks. The rate is
// zero for every currently supported model; the field is reserved for paid
// tiers.
func EstimateCost(totalTokens int, ratePerKilotoks float64) float64 {
	return float64(totalTokens) / 1000.0 * ratePerKilotoks
}
