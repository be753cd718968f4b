package domain

const (
	StatusTrading     = "TRADING"
	ContractPerpetual = "PERPETUAL"
	DefaultQuoteAsset = "USDT"
)

// Instrument is one entry of the upstream universe listing.
// Status, ContractType and QuoteAsset are only used for universe filtering.
type Instrument struct {
	Symbol       string
	Status       string
	ContractType string
	BaseAsset    string
	QuoteAsset   string
}

// Tradable reports whether the instrument is an actively trading perpetual quoted in quote.
func (i Instrument) Tradable(quote string) bool {
	return i.Status == StatusTrading && i.ContractType == ContractPerpetual && i.QuoteAsset == quote
}
