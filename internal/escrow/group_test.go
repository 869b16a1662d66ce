package escrow

import (
	"context"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestExchange(t *testing.T, ledger *FakeLedger, buyer string) (Exchange, Program) {
	t.Helper()
	ctx := context.Background()
	seller := testAddress(2)
	program, err := RenderAndCompile(ctx, ledger, Trade{AssetID: 77, SellerAddress: seller, PriceMinorUnits: 2_500_000, AssetAmount: 1})
	require.NoError(t, err)
	sp, err := ledger.SuggestedParams(ctx)
	require.NoError(t, err)
	ex, err := BuildExchange(ExchangeParams{
		BuyerAddress:    buyer,
		SellerAddress:   seller,
		EscrowAddress:   program.Address,
		AssetID:         77,
		PriceMinorUnits: 2_500_000,
		AssetAmount:     1,
	}, sp)
	require.NoError(t, err)
	return ex, program
}

func TestBuildExchangeOrdersLegs(t *testing.T) {
	buyer := testAddress(1)
	ex, program := buildTestExchange(t, NewFakeLedger(), buyer)
	txns := ex.Transactions()
	require.Len(t, txns, 2)

	pay := txns[PaymentIndex]
	assert.Equal(t, types.PaymentTx, pay.Type)
	assert.Equal(t, buyer, pay.Sender.String())
	assert.Equal(t, testAddress(2), pay.Receiver.String())
	assert.Equal(t, types.MicroAlgos(2_500_000), pay.Amount)

	xfer := txns[AssetTransferIndex]
	assert.Equal(t, types.AssetTransferTx, xfer.Type)
	assert.Equal(t, program.Address, xfer.Sender.String())
	assert.Equal(t, buyer, xfer.AssetReceiver.String())
	assert.Equal(t, types.AssetIndex(77), xfer.XferAsset)
	assert.Equal(t, uint64(1), xfer.AssetAmount)

	for _, tx := range txns {
		assert.Equal(t, types.MicroAlgos(MaxLegFee), tx.Fee)
		assert.Equal(t, types.Address{}, tx.RekeyTo)
		assert.Equal(t, types.Address{}, tx.CloseRemainderTo)
	}
}

func TestBuildExchangeGroupsFinishedLegs(t *testing.T) {
	ex, _ := buildTestExchange(t, NewFakeLedger(), testAddress(1))
	assert.NotEqual(t, types.Digest{}, ex.GroupID)
	assert.Equal(t, ex.GroupID, ex.Payment.Group)
	assert.Equal(t, ex.GroupID, ex.AssetTransfer.Group)

	pay, xfer := ex.Payment, ex.AssetTransfer
	pay.Group, xfer.Group = types.Digest{}, types.Digest{}
	gid, err := crypto.ComputeGroupID([]types.Transaction{pay, xfer})
	require.NoError(t, err)
	assert.Equal(t, ex.GroupID, gid)

	pay.Amount++
	changed, err := crypto.ComputeGroupID([]types.Transaction{pay, xfer})
	require.NoError(t, err)
	assert.NotEqual(t, ex.GroupID, changed)
}

func TestBuildExchangeRejects(t *testing.T) {
	ledger := NewFakeLedger()
	sp, err := ledger.SuggestedParams(context.Background())
	require.NoError(t, err)
	base := ExchangeParams{
		BuyerAddress:    testAddress(1),
		SellerAddress:   testAddress(2),
		EscrowAddress:   testAddress(3),
		PriceMinorUnits: 10,
		AssetAmount:     1,
	}

	p := base
	p.EscrowAddress = p.BuyerAddress
	_, err = BuildExchange(p, sp)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	p = base
	p.SellerAddress = "NOTANADDRESS"
	_, err = BuildExchange(p, sp)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	p = base
	p.PriceMinorUnits = 0
	_, err = BuildExchange(p, sp)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	expensive := sp
	expensive.MinFee = MaxLegFee + 1
	_, err = BuildExchange(base, expensive)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}

func TestSignedGroupIsAccepted(t *testing.T) {
	ctx := context.Background()
	ledger := NewFakeLedger()
	signer := NewKeySigner(crypto.GenerateAccount())
	ex, program := buildTestExchange(t, ledger, signer.Address())

	signedPay, err := signer.SignTransactions(ctx, ex.Transactions(), []int{PaymentIndex})
	require.NoError(t, err)
	require.Len(t, signedPay, 1)

	_, err = signer.SignTransactions(ctx, ex.Transactions(), []int{AssetTransferIndex})
	assert.ErrorIs(t, err, ErrSignatureDeclined)

	signedXfer, err := SignWithProgram(ex.AssetTransfer, program.Bytecode)
	require.NoError(t, err)

	_, err = SignWithProgram(ex.Payment, program.Bytecode)
	assert.Error(t, err)

	txID, err := ledger.SubmitGroup(ctx, [][]byte{signedPay[0], signedXfer})
	require.NoError(t, err)
	assert.Equal(t, crypto.GetTxID(ex.Payment), txID)
	_, ok := ledger.Submitted(txID)
	assert.True(t, ok)
}
