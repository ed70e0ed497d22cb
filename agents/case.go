package agents

import "time"

// Case is one immutable analysis request. It is owned by the orchestration run
// that created it and must never be mutated by an agent.
type Case struct {
	InvoiceID     string
	BuyerID       string
	MerchantID    string
	InvoiceAmount float64
	InvoiceDate   time.Time
	// History carries pre-resolved buyer payment stats when the caller already
	// has them; agents fall back to their providers when nil.
	History *BuyerHistory
}

// BuyerHistory summarizes a buyer's prior payment cycles.
type BuyerHistory struct {
	BuyerID        string
	BuyerName      string
	AvgPaymentDays int
	OnTimeRate     float64
	TotalInvoices  int
	RiskScore      int
}
