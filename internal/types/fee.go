package types

// Worst-case Taproot virtual sizes, in vBytes. The planner only needs a
// conservative upper bound; the transaction builder settles the exact fee when
// it constructs the real transaction.
const (
	TaprootInputVSize  = 58
	TaprootOutputVSize = 43
	TxOverheadVSize    = 11

	// FeeSafetyMarginPercent inflates the estimate to avoid underfunding a
	// vault when the real transaction comes out slightly larger.
	FeeSafetyMarginPercent = 10
)

// BtcNetworkFee mirrors the mempool.space recommended-fee tiers.
type BtcNetworkFee struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
}

// TransactionVSizeEstimate returns the worst-case virtual size of a
// Taproot-spending transaction with the given input and output counts.
func TransactionVSizeEstimate(numInputs, numOutputs int) uint64 {
	return uint64(TxOverheadVSize + numInputs*TaprootInputVSize + numOutputs*TaprootOutputVSize)
}

// EstimateFee returns the conservative fee for a transaction shape at the
// given fee rate (sat/vByte), safety margin included.
func EstimateFee(numInputs, numOutputs int, feeRate uint64) uint64 {
	fee := TransactionVSizeEstimate(numInputs, numOutputs) * feeRate
	return fee + fee*FeeSafetyMarginPercent/100
}

// GetDustAmount returns the threshold below which an output is considered
// dust at the given fee rate.
func GetDustAmount(feeRate uint64) uint64 {
	// 31 vBytes is the marginal cost of spending a P2WPKH-sized output.
	dust := 294 + feeRate*31
	if dust < 546 {
		dust = 546
	}
	return dust
}
