package escrow

import (
	"encoding/base64"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Group positions. The escrow program reads them as gtxn 0 and gtxn 1.
const (
	PaymentIndex       = 0
	AssetTransferIndex = 1
)

// ExchangeParams describes one atomic buyer-payment / asset-delivery swap.
type ExchangeParams struct {
	BuyerAddress    string
	SellerAddress   string
	EscrowAddress   string
	AssetID         uint64
	PriceMinorUnits uint64
	AssetAmount     uint64
}

func (p ExchangeParams) validate() error {
	if err := checkAddress("buyer", p.BuyerAddress); err != nil {
		return err
	}
	if err := checkAddress("seller", p.SellerAddress); err != nil {
		return err
	}
	if err := checkAddress("escrow", p.EscrowAddress); err != nil {
		return err
	}
	if p.BuyerAddress == p.SellerAddress || p.BuyerAddress == p.EscrowAddress || p.SellerAddress == p.EscrowAddress {
		return fmt.Errorf("%w: buyer, seller and escrow must be distinct", ErrInvalidAddress)
	}
	if err := checkPrice(p.PriceMinorUnits); err != nil {
		return err
	}
	return checkAssetAmount(p.AssetAmount)
}

// Exchange is an unsigned, grouped pair of transactions.
type Exchange struct {
	Payment       types.Transaction
	AssetTransfer types.Transaction
	GroupID       types.Digest
}

// Transactions returns the legs in group order.
func (e Exchange) Transactions() []types.Transaction {
	return []types.Transaction{e.Payment, e.AssetTransfer}
}

// GroupIDString is the base64 form of the group id.
func (e Exchange) GroupIDString() string {
	return base64.StdEncoding.EncodeToString(e.GroupID[:])
}

// BuildExchange creates the payment leg (buyer to seller) and the asset leg
// (escrow to buyer) and assigns both the group id computed over the finished
// pair.
func BuildExchange(p ExchangeParams, sp types.SuggestedParams) (Exchange, error) {
	if err := p.validate(); err != nil {
		return Exchange{}, err
	}
	if sp.MinFee > MaxLegFee {
		return Exchange{}, fmt.Errorf("%w: network minimum fee %d exceeds program limit %d", ErrSubmissionRejected, sp.MinFee, MaxLegFee)
	}
	sp.FlatFee = true
	sp.Fee = types.MicroAlgos(MaxLegFee)

	payment, err := transaction.MakePaymentTxn(p.BuyerAddress, p.SellerAddress, p.PriceMinorUnits, nil, "", sp)
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: payment leg: %v", ErrInvalidAddress, err)
	}
	transfer, err := transaction.MakeAssetTransferTxn(p.EscrowAddress, p.BuyerAddress, p.AssetAmount, nil, sp, "", p.AssetID)
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: asset leg: %v", ErrInvalidAddress, err)
	}

	gid, err := crypto.ComputeGroupID([]types.Transaction{payment, transfer})
	if err != nil {
		return Exchange{}, fmt.Errorf("compute group id: %w", err)
	}
	payment.Group = gid
	transfer.Group = gid

	return Exchange{Payment: payment, AssetTransfer: transfer, GroupID: gid}, nil
}
