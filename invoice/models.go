package invoice

import "time"

// Invoice mirrors the invoices table columns the engine touches. It carries
// no JSON annotations so it can be reused by different presentation layers.
type Invoice struct {
	ID              string
	MerchantID      string
	BuyerID         string
	InvoiceNumber   string
	Amount          float64
	Status          string
	IRN             *string
	RecommendedRate *float64
	InvoiceDate     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	// StatusUploaded is the initial state after ingestion.
	StatusUploaded = "uploaded"
	// StatusFinanceable is set when an analysis run approves the invoice.
	StatusFinanceable = "financeable"
)
