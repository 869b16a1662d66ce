package escrow

import (
	"strconv"
	"strings"
)

// Substitution points of escrowTemplate. Changing them, or any byte of the
// template, changes every derived escrow address.
const (
	placeholderAssetID     = "__ASSET_ID__"
	placeholderSeller      = "__SELLER_ADDR__"
	placeholderPrice       = "__PRICE__"
	placeholderAssetAmount = "__ASSET_AMOUNT__"
)

// MaxLegFee is the fee ceiling the program enforces on both group legs.
const MaxLegFee uint64 = 1000

// escrowTemplate authorizes a spend only inside a two-leg group where leg 0
// pays the seller at least the price and leg 1 moves exactly the agreed
// asset amount to the payer of leg 0.
const escrowTemplate = `#pragma version 5

// ARC-72 style stateless escrow for atomic sale (group of 2)
// Placeholders: __ASSET_ID__, __ASSET_AMOUNT__, __SELLER_ADDR__, __PRICE__

global GroupSize
int 2
==
bnz check_tx0
err

check_tx0:
gtxn 0 TypeEnum
int 1
==
bnz check_payment
err

check_payment:
gtxn 1 TypeEnum
int 4
==
bnz check_amount
err

check_amount:
gtxn 0 Amount
int __PRICE__
>=
bnz check_receiver
err

check_receiver:
gtxn 0 Receiver
addr __SELLER_ADDR__
==
bnz check_xfer_asset
err

check_xfer_asset:
gtxn 1 XferAsset
int __ASSET_ID__
==
bnz check_asset_amount
err

check_asset_amount:
gtxn 1 AssetAmount
int __ASSET_AMOUNT__
==
bnz check_receiver_match
err

check_receiver_match:
gtxn 1 AssetReceiver
gtxn 0 Sender
==
bnz check_rekey_0
err

check_rekey_0:
gtxn 0 RekeyTo
global ZeroAddress
==
bnz check_rekey_1
err

check_rekey_1:
gtxn 1 RekeyTo
global ZeroAddress
==
bnz check_close_0
err

check_close_0:
gtxn 0 CloseRemainderTo
global ZeroAddress
==
bnz check_close_1
err

check_close_1:
gtxn 1 CloseRemainderTo
global ZeroAddress
==
bnz check_fee_0
err

check_fee_0:
gtxn 0 Fee
int 1000
<=
bnz check_fee_1
err

check_fee_1:
gtxn 1 Fee
int 1000
<=
bnz success
err

success:
int 1
return
`

// Trade holds the four parameters substituted into the escrow program.
type Trade struct {
	AssetID         uint64
	SellerAddress   string
	PriceMinorUnits uint64
	AssetAmount     uint64
}

// Validate checks the trade before anything is rendered or sent to the network.
func (t Trade) Validate() error {
	if err := checkAddress("seller", t.SellerAddress); err != nil {
		return err
	}
	if err := checkPrice(t.PriceMinorUnits); err != nil {
		return err
	}
	return checkAssetAmount(t.AssetAmount)
}

// Render substitutes the trade into the escrow program template. The output is
// byte-for-byte deterministic for equal input.
func Render(t Trade) (string, error) {
	t.SellerAddress = strings.TrimSpace(t.SellerAddress)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return strings.NewReplacer(
		placeholderAssetID, strconv.FormatUint(t.AssetID, 10),
		placeholderAssetAmount, strconv.FormatUint(t.AssetAmount, 10),
		placeholderSeller, t.SellerAddress,
		placeholderPrice, strconv.FormatUint(t.PriceMinorUnits, 10),
	).Replace(escrowTemplate), nil
}
