package lifecycle

import (
	"time"

	"gigescrow/internal/escrow"
)

// EscrowAgreement is one purchase in progress. CompiledProgram and
// EscrowAddress are fixed at creation; only the tracker changes Status.
type EscrowAgreement struct {
	ID              string          `json:"id"`
	Version         int64           `json:"-"`
	ItemID          string          `json:"itemId,omitempty"`
	ItemTitle       string          `json:"itemTitle,omitempty"`
	BuyerAddress    string          `json:"buyerAddress"`
	SellerAddress   string          `json:"sellerAddress"`
	EscrowAddress   string          `json:"escrowAddress"`
	AssetID         uint64          `json:"assetId"`
	AssetAmount     uint64          `json:"assetAmount"`
	PriceMinorUnits uint64          `json:"priceMinorUnits"`
	Status          Status          `json:"status"`
	CompiledProgram []byte          `json:"compiledProgram"`
	GroupID         string          `json:"groupId,omitempty"`
	PendingTxID     string          `json:"pendingTxId,omitempty"`
	TransactionID   string          `json:"transactionId,omitempty"`
	ConfirmedRound  uint64          `json:"confirmedRound,omitempty"`
	FailureCategory escrow.Category `json:"failureCategory,omitempty"`
	FailureReason   string          `json:"failureReason,omitempty"`
	RetryOf         string          `json:"retryOf,omitempty"`
	RetriedBy       string          `json:"retriedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Trade returns the program parameters the agreement was created with.
func (a EscrowAgreement) Trade() escrow.Trade {
	return escrow.Trade{
		AssetID:         a.AssetID,
		SellerAddress:   a.SellerAddress,
		PriceMinorUnits: a.PriceMinorUnits,
		AssetAmount:     a.AssetAmount,
	}
}

// ExchangeParams returns the inputs for building the agreement's atomic group.
func (a EscrowAgreement) ExchangeParams() escrow.ExchangeParams {
	return escrow.ExchangeParams{
		BuyerAddress:    a.BuyerAddress,
		SellerAddress:   a.SellerAddress,
		EscrowAddress:   a.EscrowAddress,
		AssetID:         a.AssetID,
		PriceMinorUnits: a.PriceMinorUnits,
		AssetAmount:     a.AssetAmount,
	}
}

// Draft holds what a caller supplies to open an agreement. The escrow
// address is always derived from CompiledProgram.
type Draft struct {
	ItemID          string
	ItemTitle       string
	BuyerAddress    string
	SellerAddress   string
	AssetID         uint64
	AssetAmount     uint64
	PriceMinorUnits uint64
	CompiledProgram []byte
	RetryOf         string
}

// Update carries the fields a transition records alongside the new status.
type Update struct {
	GroupID         string
	PendingTxID     string
	TransactionID   string
	ConfirmedRound  uint64
	FailureCategory escrow.Category
	FailureReason   string
}
